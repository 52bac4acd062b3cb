package spec_test

import (
	"testing"

	"github.com/aetherflow/aetherflow/pkg/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFlow(t *testing.T) *spec.FlowSpec {
	t.Helper()
	f, err := spec.ParseFlow([]byte(validFlowYAML))
	require.NoError(t, err)
	return f
}

func TestValidateAcceptsWellFormedFlow(t *testing.T) {
	errs := spec.Validate(validFlow(t))
	assert.Empty(t, errs)
}

func TestValidateRejectsDuplicateJobIDs(t *testing.T) {
	f := validFlow(t)
	f.Jobs[1].ID = f.Jobs[0].ID
	errs := spec.Validate(f)
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsDuplicateStepIDsWithinJob(t *testing.T) {
	f := validFlow(t)
	f.Jobs[0].Steps = append(f.Jobs[0].Steps, f.Jobs[0].Steps[0])
	errs := spec.Validate(f)
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsForwardDependsOn(t *testing.T) {
	f := validFlow(t)
	f.Jobs[0].DependsOn = []string{"load"}
	errs := spec.Validate(f)
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsUnknownResourceReference(t *testing.T) {
	f := validFlow(t)
	f.Jobs[1].Steps[0].Inputs["resource"] = "resource:does_not_exist"
	errs := spec.Validate(f)
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsDisallowedWhenGrammar(t *testing.T) {
	f := validFlow(t)
	f.Jobs[1].When = `len(jobs.extract.outputs.rows) > 0`
	errs := spec.Validate(f)
	assert.NotEmpty(t, errs)
}

func TestValidateEnvStrictFlagsUnresolvableReferenceWithoutDefault(t *testing.T) {
	f := validFlow(t)
	errs := spec.ValidateEnvStrict(f, map[string]string{"WAREHOUSE_DSN": "postgres://x"})
	// WORK_ROOT is referenced but not provided, and carries no default.
	assert.NotEmpty(t, errs)
}

func TestValidateEnvStrictPassesWhenAllReferencesResolve(t *testing.T) {
	f := validFlow(t)
	errs := spec.ValidateEnvStrict(f, map[string]string{
		"WORK_ROOT":     "/tmp/work",
		"WAREHOUSE_DSN": "postgres://x",
	})
	assert.Empty(t, errs)
}
