package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// secretRefPrefix marks a decode-hook field value as a lookup into the
// file-backed secret map rather than a literal value.
const secretRefPrefix = "secret:"

// FileHook resolves "secret:NAME" references against a flat JSON object
// of name/value pairs loaded once from AETHERFLOW_SECRETS_PATH.
type FileHook struct {
	values map[string]string
}

var _ Hook = (*FileHook)(nil)

// NewFileHook loads path as a JSON object mapping secret name to value.
func NewFileHook(path string) (*FileHook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading secrets file %q: %w", path, err)
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("secrets: parsing secrets file %q: %w", path, err)
	}
	return &FileHook{values: values}, nil
}

func (f *FileHook) Decode(_ context.Context, value string) (string, error) {
	name, ok := strings.CutPrefix(value, secretRefPrefix)
	if !ok {
		return value, nil
	}
	v, ok := f.values[name]
	if !ok {
		return "", fmt.Errorf("secrets: no secret named %q in secrets file", name)
	}
	return v, nil
}

func (f *FileHook) ExpandEnv(ctx context.Context, values map[string]string) (map[string]string, error) {
	return expandEach(ctx, f, values)
}
