package log_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/aetherflow/aetherflow/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := log.FromEnv(nil)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, log.FormatText, cfg.Format)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg := log.FromEnv(map[string]string{
		"AETHERFLOW_LOG_LEVEL":  "DEBUG",
		"AETHERFLOW_LOG_FORMAT": "JSON",
	})
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, log.FormatJSON, cfg.Format)
}

func TestNewJSONHandlerEmitsParsableJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

	logger.Info("job started", log.JobIDKey, "probe")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "probe", record[log.JobIDKey])
}

func TestWithRunJobStepScoping(t *testing.T) {
	var buf bytes.Buffer
	base := log.New(&log.Config{Level: "info", Format: log.FormatJSON, Output: &buf})

	scoped := log.WithStep(log.WithJob(log.WithRun(base, "flow1", "run1"), "job1"), "step1")
	scoped.Info("step executing")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "flow1", record[log.FlowIDKey])
	assert.Equal(t, "run1", record[log.RunIDKey])
	assert.Equal(t, "job1", record[log.JobIDKey])
	assert.Equal(t, "step1", record[log.StepIDKey])
}
