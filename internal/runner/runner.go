package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/envfile"
	aflog "github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/internal/observer"
	"github.com/aetherflow/aetherflow/internal/profile"
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/secrets"
	afstore "github.com/aetherflow/aetherflow/internal/store"
	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/gate"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/spec"

	"github.com/google/uuid"
)

// Options carries everything one Run call needs beyond the flow/profile
// documents themselves: identity, environment sources, and the state
// store backing resume. Building the Store is the caller's
// responsibility (cmd/aetherflow opens internal/store/sqlite against
// the flow's rendered state.path; tests open internal/store/memstore),
// which keeps Runner agnostic to which backend is in play.
type Options struct {
	// RunID keys resume. A caller supplying the empty string gets a
	// freshly generated identifier, i.e. this run can never resume a
	// prior one.
	RunID string

	// ProcessEnv is the process environment snapshot (e.g. os.Environ()
	// converted to a map by the caller). Never mutated.
	ProcessEnv map[string]string

	// ExternalEnvFiles and ManifestEnvFiles are merged over ProcessEnv
	// in that order, last-wins, per envfile.Build.
	ExternalEnvFiles []afconfig.EnvFileSpec
	ManifestEnvFiles []afconfig.EnvFileSpec

	Store afstore.Store
}

// Summary is the run_summary payload returned to the caller: final
// status of every job plus aggregate counts and total duration.
type Summary struct {
	FlowID      string
	RunID       string
	JobStatuses map[string]afstore.JobStatus
	Counts      map[afstore.JobStatus]int
	Duration    time.Duration
}

// Runner executes one flow's jobs sequentially against resolved
// connector handles, persisting per-step outcomes for resume. One
// Runner may be reused across many Run calls; only the Options and
// flow/profiles arguments vary per call.
type Runner struct {
	connectors *registry.ConnectorRegistry
	steps      *registry.StepRegistry
	settings   *afconfig.Settings
	observer   *observer.Observer
	log        *slog.Logger
	builder    *profile.Builder
	gate       *gate.Gate
}

// New builds a Runner. decode may be secrets.Passthrough{} when no
// secrets module is configured; obs may be nil, in which case a
// zero-configuration Observer is built internally.
func New(connectors *registry.ConnectorRegistry, steps *registry.StepRegistry, decode secrets.Hook, settings *afconfig.Settings, obs *observer.Observer) (*Runner, error) {
	if decode == nil {
		decode = secrets.Passthrough{}
	}
	if obs == nil {
		var err error
		obs, err = observer.New(nil, nil, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	if settings == nil {
		settings = &afconfig.Settings{ConnectorCacheScope: afconfig.CacheScopeRun}
	}
	return &Runner{
		connectors: connectors,
		steps:      steps,
		settings:   settings,
		observer:   obs,
		log:        aflog.New(aflog.DefaultConfig()),
		builder:    profile.New(connectors, decode, settings.ConnectorCacheScope),
		gate:       gate.New(),
	}, nil
}

// Run executes flow's jobs in declaration order against profiles,
// returning the run's summary. It implements the lifecycle spec.md
// §4.5 describes: env snapshot, validation, resource construction, a
// sequential job loop with dependency/gate/resume handling, and a
// run_summary emission.
func (r *Runner) Run(ctx context.Context, flow *spec.FlowSpec, profiles map[string]spec.ProfileSpec, opts Options) (Summary, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if errs := spec.Validate(flow); len(errs) > 0 {
		return Summary{}, joinErrors(errs)
	}

	env, err := envfile.Build(opts.ProcessEnv, opts.ExternalEnvFiles, opts.ManifestEnvFiles)
	if err != nil {
		return Summary{}, aferrors.Wrap(err, "building environment snapshot")
	}

	if r.settings.ValidateEnvStrict {
		if errs := spec.ValidateEnvStrict(flow, env); len(errs) > 0 {
			return Summary{}, joinErrors(errs)
		}
	}

	envRoot := resolver.Root{"env": stringEnvToRoot(env)}
	workRoot, err := resolver.Render(flow.Flow.Workspace.Root, envRoot)
	if err != nil {
		return Summary{}, err
	}

	connectors, err := r.builder.Build(ctx, flow.Resources, profiles, env)
	if err != nil {
		return Summary{}, err
	}
	if r.settings.ConnectorCacheScope != afconfig.CacheScopeProcess {
		defer closeConnectors(connectors)
	}

	rc := NewRunContext(flow.Flow.ID, runID, env, connectors, workRoot)

	ctx, rs := r.observer.StartRun(ctx, flow.Flow.ID, runID)

	start := time.Now()
	jobStatuses := make(map[string]afstore.JobStatus, len(flow.Jobs))
	allJobOutputs := make(map[string]jobOutputs, len(flow.Jobs))
	var runErr error

	for _, job := range flow.Jobs {
		if err := r.runJob(ctx, rc, rs, job, opts.Store, env, allJobOutputs, flow.Flow.Workspace.CleanupPolicy); err != nil {
			runErr = err
			status, _, _ := opts.Store.GetJobStatus(ctx, job.ID, runID)
			jobStatuses[job.ID] = status
			break
		}
		status, _, _ := opts.Store.GetJobStatus(ctx, job.ID, runID)
		jobStatuses[job.ID] = status
	}

	counts := make(map[afstore.JobStatus]int)
	for _, status := range jobStatuses {
		counts[status]++
	}

	summary := Summary{
		FlowID:      flow.Flow.ID,
		RunID:       runID,
		JobStatuses: jobStatuses,
		Counts:      counts,
		Duration:    time.Since(start),
	}

	r.observer.EndRun(ctx, rs, observer.Summary{Counts: counts, Duration: summary.Duration}, runErr)

	return summary, runErr
}

func closeConnectors(connectors map[string]afconnector.Connector) {
	for _, c := range connectors {
		_ = c.Close()
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := fmt.Sprintf("%d validation errors:", len(errs))
	for _, e := range errs {
		msg += "\n  - " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
