package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// envRefPrefix marks a decode-hook field value as an indirection
// through an environment variable rather than a literal value.
const envRefPrefix = "env:"

// EnvHook resolves "env:NAME" references against the process
// environment. Any value without the prefix passes through unchanged,
// so a decode-marked field can mix literal and indirected values across
// a resource definition.
type EnvHook struct{}

var _ Hook = EnvHook{}

func (EnvHook) Decode(_ context.Context, value string) (string, error) {
	name, ok := strings.CutPrefix(value, envRefPrefix)
	if !ok {
		return value, nil
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secrets: environment variable %q not set", name)
	}
	return v, nil
}

func (h EnvHook) ExpandEnv(ctx context.Context, values map[string]string) (map[string]string, error) {
	return expandEach(ctx, h, values)
}

func expandEach(ctx context.Context, h Hook, values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		decoded, err := h.Decode(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}
