package observer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	afstore "github.com/aetherflow/aetherflow/internal/store"

	"github.com/aetherflow/aetherflow/internal/observer"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestObserver(t *testing.T) (*observer.Observer, *bytes.Buffer, *prometheus.Registry) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := prometheus.NewRegistry()
	obs, err := observer.New(logger, nil, nil, reg)
	require.NoError(t, err)
	return obs, &buf, reg
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestNewDefaultsEveryOptionalDependency(t *testing.T) {
	obs, err := observer.New(nil, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, obs)

	ctx, rs := obs.StartRun(context.Background(), "flow-1", "run-1")
	obs.EndRun(ctx, rs, observer.Summary{Counts: map[afstore.JobStatus]int{afstore.JobStatusSuccess: 1}, Duration: time.Second}, nil)
}

func TestStartRunEmitsRunStartEvent(t *testing.T) {
	obs, buf, _ := newTestObserver(t)
	_, rs := obs.StartRun(context.Background(), "flow-1", "run-1")
	require.NotNil(t, rs)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run_start", lines[0]["event"])
	assert.Equal(t, "flow-1", lines[0]["flow_id"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
}

func TestEndRunEmitsRunSummaryAndRecordsMetrics(t *testing.T) {
	obs, buf, reg := newTestObserver(t)
	ctx, rs := obs.StartRun(context.Background(), "flow-1", "run-1")

	summary := observer.Summary{
		Counts:   map[afstore.JobStatus]int{afstore.JobStatusSuccess: 2, afstore.JobStatusFailed: 1},
		Duration: 3 * time.Second,
	}
	obs.EndRun(ctx, rs, summary, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "run_summary", lines[1]["event"])

	metrics, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, hasMetricFamily(metrics, "aetherflow_runs_total"))
	assert.True(t, hasMetricFamily(metrics, "aetherflow_run_duration_seconds"))
}

func TestEndRunMarksFailedStatusOnError(t *testing.T) {
	obs, _, reg := newTestObserver(t)
	ctx, rs := obs.StartRun(context.Background(), "flow-1", "run-1")
	obs.EndRun(ctx, rs, observer.Summary{Counts: map[afstore.JobStatus]int{}, Duration: time.Second}, assertError("boom"))

	metrics, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range metrics {
		if mf.GetName() != "aetherflow_runs_total" {
			continue
		}
		for _, m := range mf.Metric {
			for _, l := range m.Label {
				if l.GetName() == "status" && l.GetValue() == "failed" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}

func TestJobLifecycleEmitsStartAndEndEvents(t *testing.T) {
	obs, buf, _ := newTestObserver(t)
	ctx, rs := obs.StartRun(context.Background(), "flow-1", "run-1")
	jctx, js := obs.StartJob(ctx, rs, "job-a")
	obs.EndJob(jctx, rs, js, afstore.JobStatusSuccess, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "job_start", lines[1]["event"])
	assert.Equal(t, "job_end", lines[2]["event"])
	assert.Equal(t, "SUCCESS", lines[2]["status"])
}

func TestRecordStepAndStepFailedLog(t *testing.T) {
	obs, buf, _ := newTestObserver(t)
	ctx, rs := obs.StartRun(context.Background(), "flow-1", "run-1")
	jctx, js := obs.StartJob(ctx, rs, "job-a")

	obs.RecordStep(jctx, rs, js, "step-1", "SUCCESS", 10*time.Millisecond)
	obs.StepFailed(jctx, rs, js, "step-2", assertError("exploded"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "step_end", lines[2]["event"])
	assert.Equal(t, "step_failed", lines[3]["event"])
	assert.Equal(t, "exploded", lines[3]["error"])
}

func hasMetricFamily(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

type assertError string

func (e assertError) Error() string { return string(e) }
