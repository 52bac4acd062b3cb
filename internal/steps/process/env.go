package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

// buildEnv assembles the child process environment from the run's
// immutable snapshot (never os.Environ() directly — the runner's
// snapshot is the only source of truth for a run's environment),
// overlaid with the step's own env mapping, with the AETHERFLOW_*
// identity variables always injected last so they cannot be shadowed.
func buildEnv(cfg *config, rc afstep.Context) (env []string, outputDir string) {
	merged := map[string]string{}
	if cfg.InheritEnv {
		for k, v := range rc.Env() {
			merged[k] = v
		}
	}
	for k, v := range cfg.Env {
		merged[k] = v
	}

	merged["AETHERFLOW_FLOW_ID"] = rc.FlowID()
	merged["AETHERFLOW_RUN_ID"] = rc.RunID()
	if cfg.Idempotency.Strategy == idempotencyAtomicDir {
		outputDir = cfg.Idempotency.TempOutputDir
		merged["AETHERFLOW_OUTPUT_DIR"] = outputDir
	}

	env = make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env, outputDir
}

// copyDirThenRemove is the atomic_dir promotion fallback when src and
// dst live on different filesystems and os.Rename cannot move between
// them directly.
func copyDirThenRemove(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
