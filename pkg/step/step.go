// Package step defines the step contract every built-in and
// third-party step type implements, and the narrow view of the run
// context a step needs. The interface lives here — not in
// internal/runner — so step implementations never need to import the
// runner package, mirroring how the teacher keeps
// pkg/workflow.WorkflowContext decoupled from any specific executor.
package step

import "context"

// Status is a step's terminal outcome. There is no "failed" status: a
// failing step raises an error instead, and the runner records no
// StepRun row for it at all.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusSkipped Status = "SKIPPED"
)

// Result is what a step's Run operation returns on success.
type Result struct {
	Status  Status
	Outputs map[string]interface{}
}

// Context is the subset of the run's context a step implementation can
// observe: frozen identity and environment, connector lookup by
// resource name, and per-step artifact paths. The runner satisfies it
// with a per-step wrapper around *runner.RunContext, without this package
// importing internal/runner.
type Context interface {
	FlowID() string
	RunID() string
	// JobID is the id of the job currently executing this step, used by
	// steps (external.process's cwd default) that need their own
	// job's artifacts directory without being told it through inputs.
	JobID() string
	// StepID is the id of the step currently executing, used the same
	// way as JobID to locate this step's own artifacts subdirectory.
	StepID() string
	Env() map[string]string
	Connector(resourceName string) (interface{}, bool)
	// ArtifactsDir is this run's <job_id>/<step_id> artifacts directory,
	// per spec.md §3's per-step artifact path layout.
	ArtifactsDir(jobID, stepID string) string
	WorkRoot() string
}

// Step is the contract registered under a StepSpec's `type`.
type Step interface {
	Run(ctx context.Context, rc Context, inputs map[string]interface{}) (Result, error)
}

// Constructor builds a fresh Step instance. Step instances are
// constructed once per execution, the way the teacher's connector
// registry constructs a fresh handle per Get/Execute call rather than
// sharing mutable state across invocations.
type Constructor func() Step
