// Package runner implements the run-once job/step lifecycle: dependency
// checks, when-gating, state-backed resume, step execution against
// resolved connector handles, output promotion, and workspace cleanup.
// It is the component spec.md §4.5 describes and the one every other
// package in this repo exists to serve.
package runner

import (
	"path/filepath"

	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

// RunContext is the immutable-after-construction container spec.md §3
// describes: flow/run identity, the frozen env snapshot, constructed
// connector handles, and the work-root layout. It is built once per
// run by Runner.Run and satisfies pkg/step.Context through jobContext,
// which narrows it to the single job currently executing.
type RunContext struct {
	flowID     string
	runID      string
	env        map[string]string
	connectors map[string]afconnector.Connector
	workRoot   string
}

// NewRunContext builds the run's immutable context. env and connectors
// are not copied defensively beyond what the caller already guarantees
// immutable (Runner.Run never mutates either after this point).
func NewRunContext(flowID, runID string, env map[string]string, connectors map[string]afconnector.Connector, workRoot string) *RunContext {
	return &RunContext{
		flowID:     flowID,
		runID:      runID,
		env:        env,
		connectors: connectors,
		workRoot:   workRoot,
	}
}

func (rc *RunContext) FlowID() string { return rc.flowID }
func (rc *RunContext) RunID() string  { return rc.runID }

// Env returns the run's frozen environment snapshot. Callers must not
// mutate the returned map; step.Context does not promise a defensive
// copy since no built-in step ever writes to it.
func (rc *RunContext) Env() map[string]string { return rc.env }

// Connector looks up a resource's constructed handle by resource name.
func (rc *RunContext) Connector(resourceName string) (interface{}, bool) {
	c, ok := rc.connectors[resourceName]
	if !ok {
		return nil, false
	}
	return c, true
}

func (rc *RunContext) WorkRoot() string { return rc.workRoot }

// jobRunDir is the per-job, per-run directory: <work_root>/<flow_id>/<job_id>/<run_id>.
func (rc *RunContext) jobRunDir(jobID string) string {
	return filepath.Join(rc.workRoot, rc.flowID, jobID, rc.runID)
}

// ArtifactsDir is the per-step artifacts directory a step's own
// artifacts (and external.process's default cwd) live under:
// <work_root>/<flow_id>/<job_id>/<run_id>/artifacts/<step_id>.
func (rc *RunContext) ArtifactsDir(jobID, stepID string) string {
	return filepath.Join(rc.jobRunDir(jobID), "artifacts", stepID)
}

// ManifestsDir is the per-job manifests directory, per spec.md §3's
// RunContext.manifests_dir(job_id).
func (rc *RunContext) ManifestsDir(jobID string) string {
	return filepath.Join(rc.jobRunDir(jobID), "manifests")
}

// Connectors exposes every constructed connector, for callers (Runner)
// that need to close them at run end without threading resource names
// through separately.
func (rc *RunContext) Connectors() map[string]afconnector.Connector {
	return rc.connectors
}

// jobContext narrows a RunContext to one job and the step currently
// executing within it, the extra facts a step needs beyond what
// RunContext itself carries. A fresh jobContext is built per step so
// each step's default artifacts directory (and external.process's cwd)
// is isolated from its siblings.
type jobContext struct {
	*RunContext
	jobID  string
	stepID string
}

var _ afstep.Context = (*jobContext)(nil)

func (jc *jobContext) JobID() string  { return jc.jobID }
func (jc *jobContext) StepID() string { return jc.stepID }
