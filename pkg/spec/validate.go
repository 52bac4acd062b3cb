package spec

import (
	"fmt"
	"strings"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/gate"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// resourceRefPrefix marks a step input string literal as a resource
// reference rather than a plain value, e.g. "resource:warehouse".
const resourceRefPrefix = "resource:"

// Validate runs every semantic check spec.md §4.3 requires and returns
// every violation found, rather than stopping at the first. A nil/empty
// return means the spec is safe to execute.
func Validate(f *FlowSpec) []error {
	var errs []error

	if f.Flow.ID == "" {
		errs = append(errs, &aferrors.SpecError{Path: "flow.id", Message: "flow.id must not be empty"})
	}

	errs = append(errs, validateJobIdentifiers(f)...)
	errs = append(errs, validateDependsOn(f)...)
	errs = append(errs, validateWhenGrammar(f)...)
	errs = append(errs, validateResourceReferences(f)...)

	return errs
}

func validateJobIdentifiers(f *FlowSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(f.Jobs))
	for _, job := range f.Jobs {
		if job.ID == "" {
			errs = append(errs, &aferrors.SpecError{Path: "jobs[].id", Message: "job id must not be empty"})
			continue
		}
		if seen[job.ID] {
			errs = append(errs, &aferrors.SpecError{Path: fmt.Sprintf("jobs.%s", job.ID), Message: "duplicate job id"})
		}
		seen[job.ID] = true

		stepSeen := make(map[string]bool, len(job.Steps))
		for _, step := range job.Steps {
			if step.ID == "" {
				errs = append(errs, &aferrors.SpecError{Path: fmt.Sprintf("jobs.%s.steps[].id", job.ID), Message: "step id must not be empty"})
				continue
			}
			if stepSeen[step.ID] {
				errs = append(errs, &aferrors.SpecError{Path: fmt.Sprintf("jobs.%s.steps.%s", job.ID, step.ID), Message: "duplicate step id within job"})
			}
			stepSeen[step.ID] = true
		}
	}
	return errs
}

func validateDependsOn(f *FlowSpec) []error {
	var errs []error
	declared := make(map[string]bool, len(f.Jobs))
	for _, job := range f.Jobs {
		for _, dep := range job.DependsOn {
			if !declared[dep] {
				errs = append(errs, &aferrors.SpecError{
					Path:    fmt.Sprintf("jobs.%s.depends_on", job.ID),
					Message: fmt.Sprintf("depends_on %q must name a job declared earlier in the sequence", dep),
				})
			}
		}
		if job.ID != "" {
			declared[job.ID] = true
		}
	}
	return errs
}

func validateWhenGrammar(f *FlowSpec) []error {
	var errs []error
	for _, job := range f.Jobs {
		if job.When == "" {
			continue
		}
		if err := gate.Validate(job.When); err != nil {
			errs = append(errs, &aferrors.SpecError{
				Path:    fmt.Sprintf("jobs.%s.when", job.ID),
				Message: err.Error(),
			})
		}
	}
	return errs
}

func validateResourceReferences(f *FlowSpec) []error {
	var errs []error
	for _, job := range f.Jobs {
		for _, step := range job.Steps {
			walkResourceRefs(step.Inputs, func(ref string) {
				name := strings.TrimPrefix(ref, resourceRefPrefix)
				if _, ok := f.Resources[name]; !ok {
					errs = append(errs, &aferrors.SpecError{
						Path:    fmt.Sprintf("jobs.%s.steps.%s.inputs", job.ID, step.ID),
						Message: fmt.Sprintf("resource reference %q names an undeclared resource", ref),
					})
				}
			})
		}
	}
	return errs
}

// walkResourceRefs recursively visits every string leaf in v (a
// map/slice/scalar tree decoded from YAML/JSON) and calls fn for each one
// that carries the resource: literal prefix.
func walkResourceRefs(v interface{}, fn func(ref string)) {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, resourceRefPrefix) {
			fn(t)
		}
	case map[string]interface{}:
		for _, val := range t {
			walkResourceRefs(val, fn)
		}
	case []interface{}:
		for _, val := range t {
			walkResourceRefs(val, fn)
		}
	}
}

// ValidateEnvStrict additionally renders the workspace root and every
// string in each resource's config and options against env alone, and
// fails validation (rather than deferring to a runtime missing-key error)
// when a referenced key is absent from env and the token carries no
// default. Step inputs are not scanned. The runner invokes it when
// config.Settings.ValidateEnvStrict is enabled, and the validate command
// when --strict-env is given.
func ValidateEnvStrict(f *FlowSpec, env map[string]string) []error {
	var errs []error
	root := resolver.Root{"env": stringMapToRoot(env)}

	check := func(path, s string) {
		if !resolver.ContainsTemplateSyntax(s) {
			return
		}
		if _, err := resolver.Render(s, root); err != nil {
			errs = append(errs, &aferrors.SpecError{Path: path, Message: err.Error()})
		}
	}

	checkStrings := func(pathPrefix string, v interface{}) {
		walkStrings(v, func(s string) { check(pathPrefix, s) })
	}

	checkStrings("flow.workspace.root", f.Flow.Workspace.Root)
	for name, res := range f.Resources {
		checkStrings(fmt.Sprintf("resources.%s.config", name), res.Config)
		checkStrings(fmt.Sprintf("resources.%s.options", name), res.Options)
	}
	return errs
}

func walkStrings(v interface{}, fn func(s string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]interface{}:
		for _, val := range t {
			walkStrings(val, fn)
		}
	case []interface{}:
		for _, val := range t {
			walkStrings(val, fn)
		}
	}
}

func stringMapToRoot(env map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
