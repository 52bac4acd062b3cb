// Package envfile loads the env-file sources a run's environment is
// assembled from: dotenv files, JSON objects, and directories whose
// entries each become one key. Grounded on the teacher's layered
// configuration-loading style (internal/config.go builds Settings from
// several sources merged in a fixed order); the dotenv parser itself is
// github.com/joho/godotenv, already present across the example pack's
// workflow-engine repos (dagu, beemflow) for the same purpose.
package envfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
)

// Load reads one env-file source and returns its key/value pairs with
// spec.Prefix applied to every key. A missing path is an error unless
// spec.Optional is set, in which case Load returns an empty map.
func Load(spec afconfig.EnvFileSpec) (map[string]string, error) {
	if _, err := os.Stat(spec.Path); err != nil {
		if os.IsNotExist(err) && spec.Optional {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("env file %q: %w", spec.Path, err)
	}

	var values map[string]string
	var err error

	switch spec.Type {
	case "dotenv":
		values, err = loadDotenv(spec.Path)
	case "json":
		values, err = loadJSON(spec.Path)
	case "dir":
		values, err = loadDir(spec.Path)
	default:
		return nil, fmt.Errorf("env file %q: unknown type %q", spec.Path, spec.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("env file %q: %w", spec.Path, err)
	}

	if spec.Prefix == "" {
		return values, nil
	}
	prefixed := make(map[string]string, len(values))
	for k, v := range values {
		prefixed[spec.Prefix+k] = v
	}
	return prefixed, nil
}

func loadDotenv(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

func loadJSON(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}

// loadDir treats every immediate entry of a directory as one key, its
// value the entry's full text content, the way projected Kubernetes
// secret/configmap volumes expose one file per key.
func loadDir(path string) (map[string]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = string(data)
	}
	return out, nil
}

// Build assembles the run's final environment: process env, then every
// external env-file spec in order, then every manifest env-file spec in
// order, each layer overwriting keys the previous layers set. This is
// the deterministic, last-wins order spec.md's env-file section
// documents; processEnv is the caller's os.Environ()-derived snapshot,
// passed in rather than read here so the result stays a pure function
// of its inputs.
func Build(processEnv map[string]string, external, manifest []afconfig.EnvFileSpec) (map[string]string, error) {
	out := make(map[string]string, len(processEnv))
	for k, v := range processEnv {
		out[k] = v
	}

	for _, layer := range [][]afconfig.EnvFileSpec{external, manifest} {
		for _, spec := range layer {
			values, err := Load(spec)
			if err != nil {
				return nil, err
			}
			for k, v := range values {
				out[k] = v
			}
		}
	}

	return out, nil
}
