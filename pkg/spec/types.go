// Package spec defines the typed flow/profile/manifest model and the
// semantic validator that runs over it before any job executes. The
// shape — typed structs with yaml/json tags, strict unknown-field
// rejection at decode time, a separate validation pass that returns all
// problems at once rather than failing on the first — follows the
// teacher's workflow.Definition model (pkg/workflow/definition.go).
package spec

// CleanupPolicy controls whether a job's run directory survives after
// the job ends.
type CleanupPolicy string

const (
	CleanupOnSuccess CleanupPolicy = "on_success"
	CleanupAlways    CleanupPolicy = "always"
	CleanupNever     CleanupPolicy = "never"
)

// LockScope controls the default granularity of with_lock keys implied
// by flow metadata (informational; with_lock steps always name their own
// key explicitly).
type LockScope string

const (
	LockScopeNone LockScope = "none"
	LockScopeJob  LockScope = "job"
	LockScopeFlow LockScope = "flow"
)

// OnNoData names the only supported post-step no-data policy.
type OnNoData string

const (
	OnNoDataNone     OnNoData = ""
	OnNoDataSkipJob  OnNoData = "skip_job"
)

// FlowSpec is the root entity of a flow document.
type FlowSpec struct {
	Version   int                     `yaml:"version" json:"version"`
	Flow      FlowMetadata            `yaml:"flow" json:"flow"`
	Resources map[string]ResourceSpec `yaml:"resources" json:"resources"`
	Jobs      []JobSpec               `yaml:"jobs" json:"jobs"`
}

// FlowMetadata carries the flow's identity, workspace, state-backend, and
// lock defaults.
type FlowMetadata struct {
	ID          string          `yaml:"id" json:"id"`
	Description string          `yaml:"description" json:"description"`
	Workspace   WorkspaceSpec   `yaml:"workspace" json:"workspace"`
	State       StateSpec       `yaml:"state" json:"state"`
	Locks       LockDefaults    `yaml:"locks" json:"locks"`
}

// WorkspaceSpec controls where run artifacts land and when they are
// cleaned up.
type WorkspaceSpec struct {
	Root          string                 `yaml:"root" json:"root"`
	CleanupPolicy CleanupPolicy          `yaml:"cleanup_policy" json:"cleanup_policy"`
	Layout        map[string]interface{} `yaml:"layout" json:"layout"`
}

// StateSpec names the durable state backend.
type StateSpec struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// LockDefaults describes the flow's default lock scope and TTL. The
// with_lock step does not read it: a with_lock step without ttl_seconds
// uses its own 600-second default.
type LockDefaults struct {
	Scope      LockScope `yaml:"scope" json:"scope"`
	TTLSeconds int       `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// ResourceSpec declares one connector instance: its (kind, driver) pair
// keys the registry lookup, config/options feed the connector
// constructor, and decode marks which leaves must pass through the
// secrets-decode hook.
type ResourceSpec struct {
	Kind    string                 `yaml:"kind" json:"kind"`
	Driver  string                 `yaml:"driver" json:"driver"`
	Profile string                 `yaml:"profile" json:"profile"`
	Config  map[string]interface{} `yaml:"config" json:"config"`
	Options map[string]interface{} `yaml:"options" json:"options"`
	Decode  map[string]interface{} `yaml:"decode" json:"decode"`
}

// ProfileSpec is overlaid onto a matching ResourceSpec before template
// expansion.
type ProfileSpec struct {
	Config  map[string]interface{} `yaml:"config" json:"config"`
	Options map[string]interface{} `yaml:"options" json:"options"`
	Decode  map[string]interface{} `yaml:"decode" json:"decode"`
}

// JobSpec is one node in the (implicitly ordered, acyclic) job sequence.
type JobSpec struct {
	ID          string     `yaml:"id" json:"id"`
	Description string     `yaml:"description" json:"description"`
	DependsOn   []string   `yaml:"depends_on" json:"depends_on"`
	When        string     `yaml:"when" json:"when"`
	Steps       []StepSpec `yaml:"steps" json:"steps"`
}

// StepSpec is one unit of work within a job.
type StepSpec struct {
	ID        string                 `yaml:"id" json:"id"`
	Type      string                 `yaml:"type" json:"type"`
	Inputs    map[string]interface{} `yaml:"inputs" json:"inputs"`
	Outputs   map[string]string      `yaml:"outputs" json:"outputs"`
	OnNoData  OnNoData               `yaml:"on_no_data" json:"on_no_data"`
}
