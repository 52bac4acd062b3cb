// Package config builds the engine's Settings value once from a process
// environment snapshot, the way the teacher centralizes configuration in
// dedicated Config structs (internal/log.Config,
// internal/controller/backend.Config) built once at startup and passed
// down explicitly rather than read piecemeal from the environment deep in
// the call stack.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Mode selects the deployment mode, which gates which env vars and
// plugin-loading paths are honored.
type Mode string

const (
	ModeInternalFast Mode = "internal_fast"
	ModeEnterprise   Mode = "enterprise"
)

// CacheScope is the connector-caching scope the profile builder applies
// to every resource; profiles carry no scope of their own.
type CacheScope string

const (
	CacheScopeRun     CacheScope = "run"
	CacheScopeProcess CacheScope = "process"
	CacheScopeNone    CacheScope = "none"
)

// EnvFileSpec describes one external env-file source, per the env-file
// spec grammar: type, path, optional, prefix.
type EnvFileSpec struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Optional bool   `json:"optional"`
	Prefix   string `json:"prefix"`
}

// Settings is the engine's resolved configuration, built once from the
// process environment and passed into the runner.
type Settings struct {
	WorkRoot            string
	StateRoot           string
	Mode                Mode
	EnvFiles            []EnvFileSpec
	ProfilesFile        string
	ProfilesInline      string
	PluginPaths         []string
	SecretsModule       string
	SecretsPath         string
	StrictTemplates     bool
	ValidateEnvStrict   bool
	LogFormat           string
	ConnectorCacheScope CacheScope
}

// FromEnv builds Settings from an environment snapshot (typically
// os.Environ() converted to a map by the caller). Unset variables take
// the documented defaults.
func FromEnv(env map[string]string) (*Settings, error) {
	s := &Settings{
		WorkRoot:            getOr(env, "AETHERFLOW_WORK_ROOT", "/tmp/work"),
		StateRoot:           getOr(env, "AETHERFLOW_STATE_ROOT", "/tmp/state"),
		Mode:                Mode(getOr(env, "AETHERFLOW_MODE", string(ModeInternalFast))),
		ProfilesFile:        env["AETHERFLOW_PROFILES_FILE"],
		ProfilesInline:      env["AETHERFLOW_PROFILES_JSON"],
		SecretsModule:       env["AETHERFLOW_SECRETS_MODULE"],
		SecretsPath:         env["AETHERFLOW_SECRETS_PATH"],
		StrictTemplates:     getBoolOr(env, "AETHERFLOW_STRICT_TEMPLATES", true),
		ValidateEnvStrict:   getBoolOr(env, "AETHERFLOW_VALIDATE_ENV_STRICT", false),
		LogFormat:           getOr(env, "AETHERFLOW_LOG_FORMAT", "text"),
		ConnectorCacheScope: CacheScope(getOr(env, "AETHERFLOW_CONNECTOR_CACHE_DEFAULT", string(CacheScopeRun))),
	}

	if raw, ok := env["AETHERFLOW_PLUGIN_PATHS"]; ok && raw != "" {
		s.PluginPaths = splitPathList(raw)
	}

	if raw, ok := env["AETHERFLOW_ENV_FILES_JSON"]; ok && raw != "" {
		var specs []EnvFileSpec
		if err := json.Unmarshal([]byte(raw), &specs); err != nil {
			return nil, aferrors.Wrap(err, "parsing AETHERFLOW_ENV_FILES_JSON")
		}
		s.EnvFiles = specs
	}

	if s.Mode == ModeEnterprise {
		// Plugin paths are an internal_fast-only mechanism; enterprise
		// mode resolves plugins from the bundle manifest instead.
		s.PluginPaths = nil
	}

	return s, nil
}

func getOr(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return fallback
}

func getBoolOr(env map[string]string, key string, fallback bool) bool {
	v, ok := env[key]
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitPathList(raw string) []string {
	parts := strings.Split(raw, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports an error if required settings are missing given the
// active mode. A CLI wrapper maps this to exit code 3.
func (s *Settings) Validate() error {
	if s.WorkRoot == "" {
		return fmt.Errorf("AETHERFLOW_WORK_ROOT must not be empty")
	}
	if s.StateRoot == "" {
		return fmt.Errorf("AETHERFLOW_STATE_ROOT must not be empty")
	}
	if s.Mode != ModeInternalFast && s.Mode != ModeEnterprise {
		return fmt.Errorf("AETHERFLOW_MODE must be %q or %q, got %q", ModeInternalFast, ModeEnterprise, s.Mode)
	}
	return nil
}
