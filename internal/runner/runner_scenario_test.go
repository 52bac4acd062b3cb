package runner_test

import (
	"context"
	"testing"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/observer"
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/aetherflow/aetherflow/internal/store/memstore"
	afstore "github.com/aetherflow/aetherflow/internal/store"
	afstep "github.com/aetherflow/aetherflow/pkg/step"
	"github.com/aetherflow/aetherflow/pkg/spec"

	"github.com/stretchr/testify/require"
)

// scriptedStep returns a fixed Result on every call and records how many
// times it ran, so scenario tests can assert a resumed or skip-gated step
// was never re-invoked.
type scriptedStep struct {
	result afstep.Result
	calls  *int
}

func (s scriptedStep) Run(context.Context, afstep.Context, map[string]interface{}) (afstep.Result, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.result, nil
}

func newTestRunner(t *testing.T, stepRegistry *registry.StepRegistry) *runner.Runner {
	t.Helper()
	connectors := registry.NewConnectorRegistry()
	obs, err := observer.New(nil, nil, nil, nil)
	require.NoError(t, err)
	r, err := runner.New(connectors, stepRegistry, secrets.Passthrough{}, &afconfig.Settings{ConnectorCacheScope: afconfig.CacheScopeRun}, obs)
	require.NoError(t, err)
	return r
}

// TestGatedSkip covers the "probe returns has_data: false, a downstream job
// gated on jobs.probe.outputs.has_data == true never runs its steps"
// scenario. It exercises RenderValue's type-preserving output promotion:
// without it, has_data would promote as the string "false" and the gate
// (a boolean equality comparison) would fail to compile/evaluate correctly.
func TestGatedSkip(t *testing.T) {
	steps := registry.NewStepRegistry()
	var probeCalls, processCalls int
	steps.Register("probe_step", func() afstep.Step {
		return scriptedStep{
			result: afstep.Result{Status: afstep.StatusSuccess, Outputs: map[string]interface{}{"has_data": false, "count": 0}},
			calls:  &probeCalls,
		}
	})
	steps.Register("process_step", func() afstep.Step {
		return scriptedStep{
			result: afstep.Result{Status: afstep.StatusSuccess, Outputs: map[string]interface{}{}},
			calls:  &processCalls,
		}
	})

	flow := &spec.FlowSpec{
		Version: 1,
		Flow: spec.FlowMetadata{
			ID:        "gated-skip",
			Workspace: spec.WorkspaceSpec{Root: "/tmp/aetherflow-test", CleanupPolicy: spec.CleanupNever},
			State:     spec.StateSpec{Backend: "sqlite", Path: "/tmp/aetherflow-test/state.db"},
		},
		Jobs: []spec.JobSpec{
			{
				ID: "probe",
				Steps: []spec.StepSpec{
					{
						ID:   "check_items",
						Type: "probe_step",
						Outputs: map[string]string{
							"has_data": "{{result.has_data}}",
							"count":    "{{result.count}}",
						},
					},
				},
			},
			{
				ID:   "process",
				When: "jobs.probe.outputs.has_data == true",
				Steps: []spec.StepSpec{
					{ID: "do_work", Type: "process_step"},
				},
			},
		},
	}

	r := newTestRunner(t, steps)
	st := memstore.New()
	defer st.Close()

	summary, err := r.Run(context.Background(), flow, nil, runner.Options{
		RunID: "run-s1",
		Store: st,
	})
	require.NoError(t, err)

	require.Equal(t, afstore.JobStatusSuccess, summary.JobStatuses["probe"])
	require.Equal(t, afstore.JobStatusSkipped, summary.JobStatuses["process"])
	require.Equal(t, 1, probeCalls)
	require.Equal(t, 0, processCalls, "process_step must never execute when its job is gated SKIPPED")
}

// TestResumeSkipsCompletedSteps covers resuming a run_id whose first job
// already has a SUCCESS StepRun row: the step must not be re-invoked, but
// its declared outputs must still be promoted so later jobs see them.
func TestResumeSkipsCompletedSteps(t *testing.T) {
	steps := registry.NewStepRegistry()
	var calls int
	steps.Register("loader", func() afstep.Step {
		return scriptedStep{
			result: afstep.Result{Status: afstep.StatusSuccess, Outputs: map[string]interface{}{"rows": 42}},
			calls:  &calls,
		}
	})

	flow := &spec.FlowSpec{
		Version: 1,
		Flow: spec.FlowMetadata{
			ID:        "resume-flow",
			Workspace: spec.WorkspaceSpec{Root: "/tmp/aetherflow-test", CleanupPolicy: spec.CleanupNever},
			State:     spec.StateSpec{Backend: "sqlite", Path: "/tmp/aetherflow-test/state.db"},
		},
		Jobs: []spec.JobSpec{
			{
				ID: "load",
				Steps: []spec.StepSpec{
					{ID: "load_step", Type: "loader", Outputs: map[string]string{"rows": "{{result.rows}}"}},
				},
			},
		},
	}

	r := newTestRunner(t, steps)
	st := memstore.New()
	defer st.Close()

	_, err := r.Run(context.Background(), flow, nil, runner.Options{RunID: "run-resume", Store: st})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	summary, err := r.Run(context.Background(), flow, nil, runner.Options{RunID: "run-resume", Store: st})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "resuming a completed run must not re-invoke the step")
	require.Equal(t, afstore.JobStatusSuccess, summary.JobStatuses["load"])
}

// TestTemplateStrictnessRejectsUnsupportedSyntax covers flow S4: a step
// input using ${...} syntax instead of {{...}} fails when the runner
// renders the step's inputs, before the step runs, rather than silently
// passing the literal through.
func TestTemplateStrictnessRejectsUnsupportedSyntax(t *testing.T) {
	steps := registry.NewStepRegistry()
	steps.Register("noop_step", func() afstep.Step {
		return scriptedStep{result: afstep.Result{Status: afstep.StatusSuccess, Outputs: map[string]interface{}{}}}
	})

	flow := &spec.FlowSpec{
		Version: 1,
		Flow: spec.FlowMetadata{
			ID:        "strict-flow",
			Workspace: spec.WorkspaceSpec{Root: "/tmp/aetherflow-test", CleanupPolicy: spec.CleanupNever},
			State:     spec.StateSpec{Backend: "sqlite", Path: "/tmp/aetherflow-test/state.db"},
		},
		Jobs: []spec.JobSpec{
			{
				ID: "bad_template",
				Steps: []spec.StepSpec{
					{
						ID:     "s1",
						Type:   "noop_step",
						Inputs: map[string]interface{}{"path": "${env.HOME}/out"},
					},
				},
			},
		},
	}

	r := newTestRunner(t, steps)
	st := memstore.New()
	defer st.Close()

	_, err := r.Run(context.Background(), flow, nil, runner.Options{RunID: "run-strict", Store: st})
	require.Error(t, err)
}
