package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	aflog "github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/internal/observer"
	afstore "github.com/aetherflow/aetherflow/internal/store"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/spec"
	afstep "github.com/aetherflow/aetherflow/pkg/step"
)

// runJob executes one job's full lifecycle: dependency check, when-gate,
// the resume-aware step loop, output promotion, status persistence, and
// workspace cleanup. allJobOutputs is mutated in place with this job's
// final promoted outputs so later jobs can reference them through the
// "jobs" root.
func (r *Runner) runJob(ctx context.Context, rc *RunContext, rs *observer.RunSpan, job spec.JobSpec, st afstore.Store, env map[string]string, allJobOutputs map[string]jobOutputs, cleanup spec.CleanupPolicy) error {
	ctx, js := r.observer.StartJob(ctx, rs, job.ID)
	var endErr error
	status := afstore.JobStatusRunning
	defer func() {
		r.observer.EndJob(ctx, rs, js, status, endErr)
	}()

	if blocked, err := r.dependenciesUnsatisfied(ctx, job, rc.RunID(), st); err != nil {
		endErr = err
		return err
	} else if blocked {
		status = afstore.JobStatusBlocked
		if err := st.SetJobStatus(ctx, job.ID, rc.RunID(), status); err != nil {
			endErr = err
			return err
		}
		allJobOutputs[job.ID] = jobOutputs{}
		return nil
	}

	if job.When != "" {
		pass, err := r.gate.Eval(job.When, gateRoot(env, allJobOutputs))
		if err != nil {
			endErr = err
			return err
		}
		if !pass {
			status = afstore.JobStatusSkipped
			if err := st.SetJobStatus(ctx, job.ID, rc.RunID(), status); err != nil {
				endErr = err
				return err
			}
			allJobOutputs[job.ID] = jobOutputs{}
			return nil
		}
	}

	status = afstore.JobStatusRunning
	if err := st.SetJobStatus(ctx, job.ID, rc.RunID(), status); err != nil {
		endErr = err
		return err
	}

	jOutputs := jobOutputs{}
	stepsRaw := map[string]interface{}{}
	skipRemaining := false

	for _, stepSpec := range job.Steps {
		if skipRemaining {
			if err := st.SetStepStatus(ctx, job.ID, rc.RunID(), stepSpec.ID, afstore.StepStatusSkipped); err != nil {
				endErr = err
				status = afstore.JobStatusFailed
				return err
			}
			if err := r.promoteOutputs(stepSpec, env, rc, job.ID, stepsRaw, jOutputs, allJobOutputs, map[string]interface{}{}); err != nil {
				endErr = err
				status = afstore.JobStatusFailed
				return err
			}
			r.observer.RecordStep(ctx, rs, js, stepSpec.ID, string(afstep.StatusSkipped), 0)
			continue
		}

		prior, found, err := st.GetStepStatus(ctx, job.ID, rc.RunID(), stepSpec.ID)
		if err != nil {
			endErr = err
			status = afstore.JobStatusFailed
			return err
		}

		var result afstep.Result
		started := time.Now()

		if found {
			// Already SUCCESS or SKIPPED: do not invoke Run again. Outputs
			// are promoted from an empty result mapping, per the
			// documented resume/promotion decision — the step's real
			// outputs are not persisted and cannot be reconstructed
			// without re-executing it.
			result = afstep.Result{Status: afstep.Status(prior), Outputs: map[string]interface{}{}}
		} else {
			inputsRoot := stepInputRoot(env, rc.FlowID(), rc.RunID(), job.ID, stepsRaw, jOutputs, allJobOutputs)
			renderedInputsAny, err := resolver.RenderTree(map[string]interface{}(stepSpec.Inputs), inputsRoot)
			if err != nil {
				endErr = err
				status = afstore.JobStatusFailed
				r.observer.StepFailed(ctx, rs, js, stepSpec.ID, err)
				return err
			}
			renderedInputs, _ := renderedInputsAny.(map[string]interface{})

			inst, err := r.steps.New(stepSpec.Type)
			if err != nil {
				endErr = err
				status = afstore.JobStatusFailed
				r.observer.StepFailed(ctx, rs, js, stepSpec.ID, err)
				return err
			}

			jctx := &jobContext{RunContext: rc, jobID: job.ID, stepID: stepSpec.ID}
			result, err = inst.Run(ctx, jctx, renderedInputs)
			if err != nil {
				stepErr := &aferrors.StepError{JobID: job.ID, StepID: stepSpec.ID, Cause: err}
				endErr = stepErr
				status = afstore.JobStatusFailed
				r.observer.StepFailed(ctx, rs, js, stepSpec.ID, stepErr)
				return stepErr
			}

			if err := st.SetStepStatus(ctx, job.ID, rc.RunID(), stepSpec.ID, afstore.StepStatus(result.Status)); err != nil {
				endErr = err
				status = afstore.JobStatusFailed
				return err
			}
		}

		stepsRaw[stepSpec.ID] = result.Outputs
		if err := r.promoteOutputs(stepSpec, env, rc, job.ID, stepsRaw, jOutputs, allJobOutputs, result.Outputs); err != nil {
			endErr = err
			status = afstore.JobStatusFailed
			return err
		}

		r.observer.RecordStep(ctx, rs, js, stepSpec.ID, string(result.Status), time.Since(started))

		if result.Status == afstep.StatusSkipped && stepSpec.OnNoData == spec.OnNoDataSkipJob {
			skipRemaining = true
		}
	}

	if skipRemaining {
		status = afstore.JobStatusSkipped
	} else {
		status = afstore.JobStatusSuccess
	}
	if err := st.SetJobStatus(ctx, job.ID, rc.RunID(), status); err != nil {
		endErr = err
		return err
	}

	allJobOutputs[job.ID] = jOutputs

	r.applyCleanup(rc, job.ID, status, cleanup)

	return nil
}

// dependenciesUnsatisfied reports whether job's depends_on list contains
// any job whose recorded JobRun status is not SUCCESS, per the
// BLOCKED-on-unsatisfied-dependency invariant.
func (r *Runner) dependenciesUnsatisfied(ctx context.Context, job spec.JobSpec, runID string, st afstore.Store) (bool, error) {
	for _, dep := range job.DependsOn {
		status, found, err := st.GetJobStatus(ctx, dep, runID)
		if err != nil {
			return false, err
		}
		if !found || status != afstore.JobStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

// promoteOutputs renders stepSpec.Outputs (job-output name -> template
// expression) against the step-output scope and merges the rendered
// values into jOutputs and allJobOutputs[job.ID], so later steps' and
// jobs' "job"/"jobs" roots see them immediately.
func (r *Runner) promoteOutputs(stepSpec spec.StepSpec, env map[string]string, rc *RunContext, jobID string, stepsRaw map[string]interface{}, jOutputs jobOutputs, allJobOutputs map[string]jobOutputs, result map[string]interface{}) error {
	if len(stepSpec.Outputs) == 0 {
		return nil
	}
	root := stepOutputRoot(env, rc.FlowID(), rc.RunID(), jobID, stepsRaw, jOutputs, allJobOutputs, result)
	for name, expr := range stepSpec.Outputs {
		rendered, err := resolver.RenderValue(expr, root)
		if err != nil {
			return fmt.Errorf("job %s step %s output %q: %w", jobID, stepSpec.ID, name, err)
		}
		jOutputs[name] = rendered
	}
	allJobOutputs[jobID] = jOutputs
	return nil
}

// applyCleanup removes the job's per-run artifacts/manifests directory
// per the workspace cleanup_policy. Failures are logged, not fatal: a
// leftover directory after a successful run is undesirable but not a
// correctness problem the caller should be interrupted for.
func (r *Runner) applyCleanup(rc *RunContext, jobID string, status afstore.JobStatus, policy spec.CleanupPolicy) {
	remove := false
	switch policy {
	case spec.CleanupAlways:
		remove = true
	case spec.CleanupOnSuccess:
		remove = status == afstore.JobStatusSuccess
	case spec.CleanupNever:
		remove = false
	}
	if !remove {
		return
	}
	dir := rc.jobRunDir(jobID)
	if err := os.RemoveAll(dir); err != nil {
		r.log.Warn("cleanup_failed",
			slog.String(aflog.EventKey, "cleanup_failed"),
			slog.String(aflog.JobIDKey, jobID),
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}
