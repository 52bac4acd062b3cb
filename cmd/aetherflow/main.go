// Command aetherflow is the CLI wrapper around the engine's embedder
// surface: validate_flow and run_flow. It wires the built-in connector
// and step registries, the configured secrets hook, and the SQLite
// state-store backend, then maps the outcome onto the documented exit
// codes. Grounded on the teacher's cmd/conductor entrypoint shape
// (a single cobra root command with subcommands added explicitly), cut
// down to the two operations this engine exposes.
package main

import (
	"errors"
	"fmt"
	"os"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Exit codes per the caller-surface contract: 0 success, 1 step/run
// failure, 2 spec/template validation failure, 3 missing required
// environment.
const (
	exitSuccess          = 0
	exitRunFailure       = 1
	exitValidationError  = 2
	exitEnvironmentError = 3
)

// missingEnvError marks a failure to resolve required configuration
// from the environment (AETHERFLOW_WORK_ROOT, AETHERFLOW_STATE_ROOT,
// AETHERFLOW_MODE), distinct from a spec validation failure.
type missingEnvError struct{ cause error }

func (e *missingEnvError) Error() string { return e.cause.Error() }
func (e *missingEnvError) Unwrap() error { return e.cause }

func main() {
	root := newRootCommand()
	err := root.Execute()
	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps a command error onto the documented exit code. A nil
// error exits 0; cobra's own usage errors (unknown flag, wrong argument
// count) are returned by Execute like any other error and exit 1.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}

	var envErr *missingEnvError
	if errors.As(err, &envErr) {
		fmt.Fprintln(os.Stderr, err)
		return exitEnvironmentError
	}

	var specErr *aferrors.SpecError
	var syntaxErr *aferrors.ResolverSyntaxError
	var missingKeyErr *aferrors.ResolverMissingKeyError
	if errors.As(err, &specErr) || errors.As(err, &syntaxErr) || errors.As(err, &missingKeyErr) {
		fmt.Fprintln(os.Stderr, err)
		return exitValidationError
	}

	fmt.Fprintln(os.Stderr, err)
	return exitRunFailure
}
