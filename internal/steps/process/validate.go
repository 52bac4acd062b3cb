package process

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// validateSuccess applies success.* rules against baseDir, the
// directory output files are expected relative to (the temp output
// directory for atomic_dir, cwd otherwise). Rule order matches the
// spec's listing: required files, forbidden files, required globs,
// marker file.
func validateSuccess(sc successConfig, baseDir string) error {
	for _, f := range sc.RequiredFiles {
		if !exists(resolvePath(baseDir, f)) {
			return &aferrors.OutputValidationError{Rule: "required_files", Message: fmt.Sprintf("required file %q missing", f)}
		}
	}
	for _, f := range sc.ForbiddenFiles {
		if exists(resolvePath(baseDir, f)) {
			return &aferrors.OutputValidationError{Rule: "forbidden_files", Message: fmt.Sprintf("forbidden file %q present", f)}
		}
	}
	for _, pattern := range sc.RequiredGlobs {
		matches, err := doublestar.FilepathGlob(resolvePath(baseDir, pattern))
		if err != nil {
			return &aferrors.OutputValidationError{Rule: "required_globs", Message: fmt.Sprintf("invalid glob %q: %v", pattern, err)}
		}
		if len(matches) == 0 {
			return &aferrors.OutputValidationError{Rule: "required_globs", Message: fmt.Sprintf("glob %q matched no files", pattern)}
		}
	}
	if sc.MarkerFile != "" && !exists(resolvePath(baseDir, sc.MarkerFile)) {
		return &aferrors.OutputValidationError{Rule: "marker_file", Message: fmt.Sprintf("marker file %q absent", sc.MarkerFile)}
	}
	return nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
