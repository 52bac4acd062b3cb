// Package profile implements the profile/resource builder pipeline:
// overlay a named profile fragment onto each declared resource, expand
// and render its config/options against the env-only view, apply the
// secrets decode hook to decode-marked leaves, and construct the
// resource's connector with a configurable caching scope. Grounded on
// the teacher's internal/connector/registry.go construction flow,
// generalized from a single (connector_name, operation) lookup into the
// five-step build spec.md §4.4 describes.
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/secrets"
	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/spec"
	"golang.org/x/sync/singleflight"
)

// Builder constructs resource connectors for one or more runs. A single
// Builder may be reused across runs within one process: "process"-scope
// caching lives on the Builder itself, while "run"-scope caching is
// local to one Build call.
type Builder struct {
	connectors *registry.ConnectorRegistry
	decode     secrets.Hook
	cacheScope afconfig.CacheScope

	mu           sync.Mutex
	processCache map[string]afconnector.Connector
	group        singleflight.Group
}

// New returns a Builder. decode may be secrets.Passthrough{} when no
// secrets module is configured.
func New(connectors *registry.ConnectorRegistry, decode secrets.Hook, cacheScope afconfig.CacheScope) *Builder {
	return &Builder{
		connectors:   connectors,
		decode:       decode,
		cacheScope:   cacheScope,
		processCache: make(map[string]afconnector.Connector),
	}
}

// Build constructs every resource's connector, returning a map keyed by
// resource name. Resources are processed in sorted-key order for
// determinism — spec.md's "declaration order" does not survive
// pkg/spec's map-typed FlowSpec.Resources, so name order is the
// deterministic substitute.
func (b *Builder) Build(ctx context.Context, resources map[string]spec.ResourceSpec, profiles map[string]spec.ProfileSpec, env map[string]string) (map[string]afconnector.Connector, error) {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)

	runCache := make(map[string]afconnector.Connector)
	result := make(map[string]afconnector.Connector, len(resources))

	for _, name := range names {
		res := resources[name]

		cfg, opts, dec, err := mergeProfile(res, profiles)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", name, err)
		}

		expandedEnv, err := b.decode.ExpandEnv(ctx, copyEnv(env))
		if err != nil {
			return nil, &aferrors.ConnectorError{Resource: name, Kind: res.Kind, Driver: res.Driver, Cause: fmt.Errorf("expanding env: %w", err)}
		}
		envRoot := resolver.Root{"env": stringMapToInterface(expandedEnv)}

		renderedCfgAny, err := resolver.RenderTree(cfg, envRoot)
		if err != nil {
			return nil, &aferrors.ConnectorError{Resource: name, Kind: res.Kind, Driver: res.Driver, Cause: err}
		}
		renderedOptsAny, err := resolver.RenderTree(opts, envRoot)
		if err != nil {
			return nil, &aferrors.ConnectorError{Resource: name, Kind: res.Kind, Driver: res.Driver, Cause: err}
		}
		renderedCfg, _ := renderedCfgAny.(map[string]interface{})
		renderedOpts, _ := renderedOptsAny.(map[string]interface{})

		// decode mirrors config's (and, if present, options') shape
		// directly — not nested under "config"/"options" sub-keys — so
		// the same mapping is applied to both trees; a marked key
		// absent from one tree is simply skipped there.
		renderedCfg, err = applyDecode(ctx, b.decode, renderedCfg, cfg, dec)
		if err != nil {
			return nil, &aferrors.ConnectorError{Resource: name, Kind: res.Kind, Driver: res.Driver, Cause: err}
		}
		renderedOpts, err = applyDecode(ctx, b.decode, renderedOpts, opts, dec)
		if err != nil {
			return nil, &aferrors.ConnectorError{Resource: name, Kind: res.Kind, Driver: res.Driver, Cause: err}
		}

		conn, err := b.getOrBuildConnector(ctx, res.Kind, res.Driver, renderedCfg, renderedOpts, runCache)
		if err != nil {
			return nil, err
		}
		result[name] = conn
	}

	return result, nil
}

func mergeProfile(res spec.ResourceSpec, profiles map[string]spec.ProfileSpec) (cfg, opts, dec map[string]interface{}, err error) {
	cfg = shallowMerge(res.Config, nil)
	opts = shallowMerge(res.Options, nil)
	dec = shallowMerge(res.Decode, nil)

	if res.Profile == "" {
		return cfg, opts, dec, nil
	}
	p, ok := profiles[res.Profile]
	if !ok {
		return nil, nil, nil, &aferrors.SpecError{Path: fmt.Sprintf("resources[profile=%s]", res.Profile), Message: "unknown profile"}
	}
	cfg = shallowMerge(cfg, p.Config)
	opts = shallowMerge(opts, p.Options)
	dec = shallowMerge(dec, p.Decode)
	return cfg, opts, dec, nil
}

// shallowMerge copies base, then overwrites each top-level key overlay
// sets — "merged key-by-key, profile overriding the base" per spec.md
// §4.4 step 1, not a deep recursive merge.
func shallowMerge(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func stringMapToInterface(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (b *Builder) getOrBuildConnector(_ context.Context, kind, driver string, cfg, opts map[string]interface{}, runCache map[string]afconnector.Connector) (afconnector.Connector, error) {
	switch b.cacheScope {
	case afconfig.CacheScopeNone:
		return b.connectors.Build(kind, driver, cfg, opts)

	case afconfig.CacheScopeRun:
		key, err := cacheKey(kind, driver, cfg, opts)
		if err != nil {
			return nil, err
		}
		if conn, ok := runCache[key]; ok {
			return conn, nil
		}
		conn, err := b.connectors.Build(kind, driver, cfg, opts)
		if err != nil {
			return nil, err
		}
		runCache[key] = conn
		return conn, nil

	case afconfig.CacheScopeProcess:
		key, err := cacheKey(kind, driver, cfg, opts)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if conn, ok := b.processCache[key]; ok {
			b.mu.Unlock()
			return conn, nil
		}
		b.mu.Unlock()

		// singleflight collapses concurrent Build calls for the same
		// key onto one constructor invocation.
		v, err, _ := b.group.Do(key, func() (interface{}, error) {
			return b.connectors.Build(kind, driver, cfg, opts)
		})
		if err != nil {
			return nil, err
		}
		conn := v.(afconnector.Connector)
		b.mu.Lock()
		b.processCache[key] = conn
		b.mu.Unlock()
		return conn, nil

	default:
		return nil, fmt.Errorf("profile: unknown connector cache scope %q", b.cacheScope)
	}
}

// cacheKey implements sha256(kind + driver + canonical-JSON(config,
// options)). encoding/json already marshals map keys in sorted order,
// which makes a plain json.Marshal of the (kind, driver, config,
// options) tuple a stable canonical form.
func cacheKey(kind, driver string, cfg, opts map[string]interface{}) (string, error) {
	payload := struct {
		Kind    string                 `json:"kind"`
		Driver  string                 `json:"driver"`
		Config  map[string]interface{} `json:"config"`
		Options map[string]interface{} `json:"options"`
	}{kind, driver, cfg, opts}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("hashing connector config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
