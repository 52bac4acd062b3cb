// Package process implements the external.process built-in step: run a
// child process with a terminate-then-kill timeout escalation, optional
// marker/atomic-dir idempotency, output success validation, and a retry
// policy. The terminate-then-kill shape is grounded on the teacher's
// internal/lifecycle.GracefulShutdown (SIGTERM, wait, then SIGKILL on a
// stubborn process) applied to a child this step itself spawned instead
// of a daemon discovered by PID file; command/env/cwd plumbing is
// grounded on internal/action/shell/action.go's run().
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

// Step is the external.process step implementation.
type Step struct{}

var _ afstep.Step = (*Step)(nil)

// NewConstructor returns the step.Constructor for external.process.
func NewConstructor() afstep.Constructor {
	return func() afstep.Step { return &Step{} }
}

// Run executes cfg.Argv per spec.md's §4.7 state machine, retrying
// according to cfg.Retry.
func (s *Step) Run(ctx context.Context, rc afstep.Context, inputs map[string]interface{}) (afstep.Result, error) {
	cfg, err := parseConfig(inputs, rc)
	if err != nil {
		return afstep.Result{}, err
	}

	if cfg.Idempotency.Strategy == idempotencyMarker && cfg.Success.MarkerFile != "" {
		markerPath := resolvePath(cfg.Cwd, cfg.Success.MarkerFile)
		if exists(markerPath) && validateSuccess(cfg.Success, cfg.Cwd) == nil {
			return afstep.Result{
				Status: afstep.StatusSkipped,
				Outputs: map[string]interface{}{
					"skipped": true,
					"marker":  markerPath,
					"reason":  "marker_present",
				},
			}, nil
		}
	}

	maxAttempts := cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attemptsMade := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptsMade = attempt
		outcome, err := s.runAttempt(ctx, rc, cfg)
		if err == nil {
			outcome.result.Outputs["attempts"] = attempt
			return outcome.result, nil
		}

		lastErr = err
		retryable := (outcome.timedOut && cfg.Retry.RetryOnTimeout) ||
			(!outcome.timedOut && outcome.exitCodeKnown && containsInt(cfg.Retry.RetryOnExitCodes, outcome.exitCode))
		if !retryable || attempt == maxAttempts {
			break
		}
		time.Sleep(backoffDelay(cfg.Retry, attempt))
	}
	return afstep.Result{}, fmt.Errorf("attempts=%d: %w", attemptsMade, lastErr)
}

type attemptOutcome struct {
	result        afstep.Result
	timedOut      bool
	exitCodeKnown bool
	exitCode      int
}

func (s *Step) runAttempt(ctx context.Context, rc afstep.Context, cfg *config) (attemptOutcome, error) {
	env, outputDir := buildEnv(cfg, rc)
	if cfg.Idempotency.Strategy == idempotencyAtomicDir {
		if err := os.RemoveAll(cfg.Idempotency.TempOutputDir); err != nil {
			return attemptOutcome{}, fmt.Errorf("clearing temp output dir: %w", err)
		}
		if err := os.MkdirAll(cfg.Idempotency.TempOutputDir, 0o755); err != nil {
			return attemptOutcome{}, fmt.Errorf("creating temp output dir: %w", err)
		}
	}

	argv := cfg.Argv
	if cfg.Shell {
		argv = []string{"sh", "-c", joinShellWords(cfg.Argv)}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.Cwd
	cmd.Env = env

	streams, err := newStreamSet(cfg.Log)
	if err != nil {
		return attemptOutcome{}, err
	}
	defer streams.close()
	cmd.Stdout = streams.stdoutWriter
	cmd.Stderr = streams.stderrWriter

	if err := cmd.Start(); err != nil {
		return attemptOutcome{}, fmt.Errorf("starting process: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	var waitErr error
	if cfg.TimeoutSeconds > 0 {
		select {
		case waitErr = <-done:
		case <-time.After(time.Duration(cfg.TimeoutSeconds * float64(time.Second))):
			timedOut = true
			waitErr = escalate(cmd, done, time.Duration(cfg.KillGraceSeconds*float64(time.Second)))
		}
	} else {
		select {
		case waitErr = <-done:
		case <-ctx.Done():
			timedOut = true
			waitErr = escalate(cmd, done, time.Duration(cfg.KillGraceSeconds*float64(time.Second)))
		}
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if timedOut {
		return attemptOutcome{timedOut: true, exitCodeKnown: false},
			&aferrors.TimeoutError{Operation: "external.process", Cause: waitErr}
	}

	if !containsInt(cfg.Success.ExitCodes, exitCode) {
		return attemptOutcome{exitCodeKnown: true, exitCode: exitCode},
			fmt.Errorf("process exited %d, want one of %v", exitCode, cfg.Success.ExitCodes)
	}

	validateDir := cfg.Cwd
	if cfg.Idempotency.Strategy == idempotencyAtomicDir {
		validateDir = cfg.Idempotency.TempOutputDir
	}
	if err := validateSuccess(cfg.Success, validateDir); err != nil {
		return attemptOutcome{exitCodeKnown: true, exitCode: exitCode}, err
	}

	if cfg.Idempotency.Strategy == idempotencyAtomicDir {
		if err := promote(cfg.Idempotency.TempOutputDir, cfg.Idempotency.FinalOutputDir); err != nil {
			return attemptOutcome{exitCodeKnown: true, exitCode: exitCode}, fmt.Errorf("promoting atomic output: %w", err)
		}
	}

	outputs := map[string]interface{}{"exit_code": exitCode}
	for k, v := range cfg.Outputs {
		outputs[k] = v
	}
	if cfg.Log.Stdout == logCapture {
		outputs["stdout"] = streams.stdoutCaptured()
	}
	if cfg.Log.Stderr == logCapture {
		outputs["stderr"] = streams.stderrCaptured()
	}
	if streams.filePath != "" {
		outputs["log_file"] = streams.filePath
	}
	if outputDir != "" {
		outputs["output_dir"] = outputDir
	}

	return attemptOutcome{
		result:        afstep.Result{Status: afstep.StatusSuccess, Outputs: outputs},
		exitCodeKnown: true,
		exitCode:      exitCode,
	}, nil
}

// escalate sends SIGTERM, waits up to grace for exit, then SIGKILL.
// Mirrors the teacher's lifecycle.GracefulShutdown escalation against a
// child process this step owns directly rather than one found by PID.
func escalate(cmd *exec.Cmd, done <-chan error, grace time.Duration) error {
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		return <-done
	}
}

func promote(tempDir, finalDir string) error {
	if err := os.RemoveAll(finalDir); err != nil {
		return err
	}
	if err := os.Rename(tempDir, finalDir); err == nil {
		return nil
	}
	// Cross-device move: fall back to copy + remove since os.Rename
	// cannot cross filesystem boundaries atomically.
	return copyDirThenRemove(tempDir, finalDir)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func backoffDelay(r retryConfig, attempt int) time.Duration {
	base := r.SleepSeconds
	if base == 0 {
		base = r.BackoffSeconds
	}
	if base == 0 {
		return 0
	}
	mult := r.BackoffMultiplier
	if mult == 0 {
		mult = 1
	}
	delay := base * math.Pow(mult, float64(attempt-1))
	if r.MaxBackoffSeconds > 0 && delay > r.MaxBackoffSeconds {
		delay = r.MaxBackoffSeconds
	}
	return time.Duration(delay * float64(time.Second))
}

func joinShellWords(words []string) string {
	buf := bytes.Buffer{}
	for i, w := range words {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(w)
	}
	return buf.String()
}

// streamSet owns the stdout/stderr writers for one attempt and any
// shared log file.
type streamSet struct {
	stdoutWriter io.Writer
	stderrWriter io.Writer
	stdoutCap    *cappedBuffer
	stderrCap    *cappedBuffer
	filePath     string
	file         *os.File
	mu           sync.Mutex
}

func newStreamSet(lc logConfig) (*streamSet, error) {
	ss := &streamSet{}
	maxBytes := lc.MaxCaptureKB * 1024

	open := func() (*os.File, error) {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		if ss.file != nil {
			return ss.file, nil
		}
		f, err := os.OpenFile(lc.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", lc.FilePath, err)
		}
		ss.file = f
		ss.filePath = lc.FilePath
		return f, nil
	}

	resolve := func(mode logMode, std *os.File) (io.Writer, *cappedBuffer, error) {
		switch mode {
		case logInherit:
			return std, nil, nil
		case logDiscard:
			return io.Discard, nil, nil
		case logCapture:
			buf := newCappedBuffer(maxBytes)
			return buf, buf, nil
		case logFile:
			f, err := open()
			if err != nil {
				return nil, nil, err
			}
			return f, nil, nil
		default:
			return nil, nil, fmt.Errorf("unknown log mode %q", mode)
		}
	}

	var err error
	ss.stdoutWriter, ss.stdoutCap, err = resolve(lc.Stdout, os.Stdout)
	if err != nil {
		return nil, err
	}
	ss.stderrWriter, ss.stderrCap, err = resolve(lc.Stderr, os.Stderr)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

func (ss *streamSet) stdoutCaptured() string {
	if ss.stdoutCap == nil {
		return ""
	}
	return ss.stdoutCap.String()
}

func (ss *streamSet) stderrCaptured() string {
	if ss.stderrCap == nil {
		return ""
	}
	return ss.stderrCap.String()
}

func (ss *streamSet) close() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.file != nil {
		_ = ss.file.Close()
	}
}

// cappedBuffer keeps at most max bytes, silently dropping anything
// beyond that bound rather than growing without limit.
type cappedBuffer struct {
	max int
	buf bytes.Buffer
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.max - c.buf.Len()
	if remaining > 0 {
		if remaining > len(p) {
			remaining = len(p)
		}
		c.buf.Write(p[:remaining])
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
