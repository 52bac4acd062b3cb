package process

import (
	"fmt"
	"path/filepath"

	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

type logMode string

const (
	logInherit logMode = "inherit"
	logCapture logMode = "capture"
	logFile    logMode = "file"
	logDiscard logMode = "discard"
)

type logConfig struct {
	Stdout       logMode
	Stderr       logMode
	FilePath     string
	MaxCaptureKB int
}

type idempotencyStrategy string

const (
	idempotencyNone       idempotencyStrategy = "none"
	idempotencyMarker     idempotencyStrategy = "marker"
	idempotencyAtomicDir  idempotencyStrategy = "atomic_dir"
	defaultKillGraceSecs                      = 15
	defaultMaxCaptureKB                       = 1024
	defaultMaxAttempts                        = 1
)

type idempotencyConfig struct {
	Strategy       idempotencyStrategy
	MarkerPath     string
	TempOutputDir  string
	FinalOutputDir string
}

type successConfig struct {
	ExitCodes      []int
	MarkerFile     string
	RequiredFiles  []string
	RequiredGlobs  []string
	ForbiddenFiles []string
}

type retryConfig struct {
	MaxAttempts       int
	SleepSeconds      float64
	BackoffSeconds    float64
	BackoffMultiplier float64
	MaxBackoffSeconds float64
	RetryOnExitCodes  []int
	RetryOnTimeout    bool
}

type config struct {
	Argv             []string
	Shell            bool
	Cwd              string
	TimeoutSeconds   float64
	KillGraceSeconds float64
	InheritEnv       bool
	Env              map[string]string
	Log              logConfig
	Idempotency      idempotencyConfig
	Success          successConfig
	Retry            retryConfig
	Outputs          map[string]interface{}
}

// parseConfig decodes the already-rendered inputs of an external.process
// step. rc supplies the job's artifacts directory for resolving a
// relative cwd.
func parseConfig(inputs map[string]interface{}, rc afstep.Context) (*config, error) {
	command, ok := inputs["command"]
	if !ok {
		return nil, fmt.Errorf("external.process requires a command")
	}
	argv, err := toStringSlice(command)
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("external.process requires a non-empty command")
	}

	if rawArgs, ok := inputs["args"]; ok {
		extra, err := toStringSlice(rawArgs)
		if err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		argv = append(argv, extra...)
	}

	cfg := &config{
		Argv:             argv,
		Shell:            boolOr(inputs["shell"], false),
		TimeoutSeconds:   floatOr(inputs["timeout_seconds"], 0),
		KillGraceSeconds: floatOr(inputs["kill_grace_seconds"], defaultKillGraceSecs),
		InheritEnv:       boolOr(inputs["inherit_env"], true),
	}

	cfg.Cwd = resolveCwd(stringOr(inputs["cwd"], ""), rc)

	if rawEnv, ok := inputs["env"].(map[string]interface{}); ok {
		cfg.Env = toStringMap(rawEnv)
	}

	cfg.Log = parseLogConfig(asMap(inputs["log"]))
	cfg.Idempotency = parseIdempotencyConfig(asMap(inputs["idempotency"]))
	cfg.Success = parseSuccessConfig(asMap(inputs["success"]), cfg.Idempotency)
	cfg.Retry = parseRetryConfig(asMap(inputs["retry"]))

	if rawOutputs, ok := inputs["outputs"].(map[string]interface{}); ok {
		cfg.Outputs = rawOutputs
	}

	if cfg.Idempotency.Strategy == idempotencyAtomicDir {
		if cfg.Idempotency.TempOutputDir == "" || cfg.Idempotency.FinalOutputDir == "" {
			return nil, fmt.Errorf("idempotency.strategy atomic_dir requires temp_output_dir and final_output_dir")
		}
	}

	return cfg, nil
}

func resolveCwd(cwd string, rc afstep.Context) string {
	artifacts := rc.ArtifactsDir(rc.JobID(), rc.StepID())
	if cwd == "" {
		return artifacts
	}
	if filepath.IsAbs(cwd) {
		return cwd
	}
	return filepath.Join(artifacts, cwd)
}

func parseLogConfig(raw map[string]interface{}) logConfig {
	lc := logConfig{
		Stdout:       logMode(stringOr(raw["stdout"], string(logCapture))),
		Stderr:       logMode(stringOr(raw["stderr"], string(logCapture))),
		FilePath:     stringOr(raw["file_path"], ""),
		MaxCaptureKB: int(floatOr(raw["max_capture_kb"], defaultMaxCaptureKB)),
	}
	return lc
}

func parseIdempotencyConfig(raw map[string]interface{}) idempotencyConfig {
	return idempotencyConfig{
		Strategy:       idempotencyStrategy(stringOr(raw["strategy"], string(idempotencyNone))),
		MarkerPath:     stringOr(raw["marker_path"], ""),
		TempOutputDir:  stringOr(raw["temp_output_dir"], ""),
		FinalOutputDir: stringOr(raw["final_output_dir"], ""),
	}
}

func parseSuccessConfig(raw map[string]interface{}, idem idempotencyConfig) successConfig {
	sc := successConfig{
		ExitCodes:      toIntSlice(raw["exit_codes"], []int{0}),
		MarkerFile:     stringOr(raw["marker_file"], ""),
		RequiredFiles:  toStringSliceOrNil(raw["required_files"]),
		RequiredGlobs:  toStringSliceOrNil(raw["required_globs"]),
		ForbiddenFiles: toStringSliceOrNil(raw["forbidden_files"]),
	}
	if sc.MarkerFile == "" && idem.Strategy == idempotencyMarker {
		sc.MarkerFile = idem.MarkerPath
	}
	return sc
}

func parseRetryConfig(raw map[string]interface{}) retryConfig {
	return retryConfig{
		MaxAttempts:       int(floatOr(raw["max_attempts"], defaultMaxAttempts)),
		SleepSeconds:      floatOr(raw["sleep_seconds"], 0),
		BackoffSeconds:    floatOr(raw["backoff_seconds"], 0),
		BackoffMultiplier: floatOr(raw["backoff_multiplier"], 1),
		MaxBackoffSeconds: floatOr(raw["max_backoff_seconds"], 0),
		RetryOnExitCodes:  toIntSlice(raw["retry_on_exit_codes"], nil),
		RetryOnTimeout:    boolOr(raw["retry_on_timeout"], false),
	}
}

// toStringSlice mirrors the teacher shell action's string/[]interface{}/
// []string command decoding, generalized for any "sequence or scalar"
// input field (command, args).
func toStringSlice(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out, nil
	case []string:
		return t, nil
	default:
		return nil, fmt.Errorf("must be a string or a sequence, got %T", v)
	}
}

func toStringSliceOrNil(v interface{}) []string {
	out, err := toStringSlice(v)
	if err != nil {
		return nil
	}
	return out
}

func toStringMap(v map[string]interface{}) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}

func toIntSlice(v interface{}, fallback []int) []int {
	raw, ok := v.([]interface{})
	if !ok {
		return fallback
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		out = append(out, int(toFloat(item)))
	}
	return out
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func stringOr(v interface{}, fallback string) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

func boolOr(v interface{}, fallback bool) bool {
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

func floatOr(v interface{}, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return toFloat(v)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
