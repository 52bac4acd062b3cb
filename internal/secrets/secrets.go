// Package secrets implements the decode hook the profile/resource
// builder invokes on fields marked decode: true. The interface is
// deliberately narrow — decode(string)->string, expand_env(map)->map —
// per spec.md §9's "Global settings and secrets hooks" design note,
// loaded once by configured module name and invoked only at the
// documented point in the resource-build pipeline.
package secrets

import "context"

// Hook is the secrets decode hook contract. Decode is applied to every
// rendered leaf a ResourceSpec or ProfileSpec marks decode: true.
// ExpandEnv is applied to a whole string map in one call, for hooks
// that can batch lookups more efficiently than one-at-a-time.
type Hook interface {
	Decode(ctx context.Context, value string) (string, error)
	ExpandEnv(ctx context.Context, values map[string]string) (map[string]string, error)
}

// Passthrough is the default hook: every value is returned unchanged.
// Used when AETHERFLOW_SECRETS_MODULE and AETHERFLOW_SECRETS_PATH are
// both unset, so decode-marked fields behave like any other field.
type Passthrough struct{}

var _ Hook = Passthrough{}

func (Passthrough) Decode(_ context.Context, value string) (string, error) {
	return value, nil
}

func (Passthrough) ExpandEnv(_ context.Context, values map[string]string) (map[string]string, error) {
	return values, nil
}
