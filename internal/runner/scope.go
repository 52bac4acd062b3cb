package runner

import "github.com/aetherflow/aetherflow/pkg/resolver"

// jobOutputs is one job's accumulated, promoted output map
// ("job-output name" -> rendered value), built incrementally as its
// steps complete.
type jobOutputs = map[string]interface{}

// stringEnvToRoot converts the run's string-only env snapshot into the
// interface{}-valued form resolver.Root requires.
func stringEnvToRoot(env map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// jobsView projects every job's accumulated outputs into the "jobs"
// root shape: jobs.<id>.outputs.<key>, per spec.md §4.2/§4.3's
// `jobs.<id>.outputs.<key>` grammar.
func jobsView(allJobOutputs map[string]jobOutputs) map[string]interface{} {
	out := make(map[string]interface{}, len(allJobOutputs))
	for id, outs := range allJobOutputs {
		out[id] = map[string]interface{}{"outputs": outs}
	}
	return out
}

// gateRoot builds the restricted view a job's `when` expression
// evaluates against: resolved outputs of already-executed jobs, plus
// env. No `steps`, `job`, `result`, `run_id`, or `flow_id` root is
// present here — spec.md §4.5 scopes the gate to "jobs" and "env" only.
func gateRoot(env map[string]string, allJobOutputs map[string]jobOutputs) map[string]interface{} {
	return map[string]interface{}{
		"jobs": jobsView(allJobOutputs),
		"env":  stringEnvToRoot(env),
	}
}

// stepInputRoot builds the variable root step input rendering is scoped
// to: env, steps (prior step outputs in the same job, keyed by step
// id), job (the current job's own id and outputs-so-far), jobs
// (sibling/prior jobs' promoted outputs), run_id, flow_id.
func stepInputRoot(env map[string]string, flowID, runID, jobID string, stepsRaw map[string]interface{}, jobOutputsSoFar jobOutputs, allJobOutputs map[string]jobOutputs) resolver.Root {
	return resolver.Root{
		"env":     stringEnvToRoot(env),
		"steps":   stepsRaw,
		"job":     map[string]interface{}{"id": jobID, "outputs": jobOutputsSoFar},
		"jobs":    jobsView(allJobOutputs),
		"run_id":  runID,
		"flow_id": flowID,
	}
}

// stepOutputRoot is stepInputRoot plus `result`, the just-returned step
// output mapping, per spec.md §4.2's "Step output promotion" phase.
func stepOutputRoot(env map[string]string, flowID, runID, jobID string, stepsRaw map[string]interface{}, jobOutputsSoFar jobOutputs, allJobOutputs map[string]jobOutputs, result map[string]interface{}) resolver.Root {
	root := stepInputRoot(env, flowID, runID, jobID, stepsRaw, jobOutputsSoFar, allJobOutputs)
	root["result"] = result
	return root
}
