// Package steps wires the built-in step types into a step registry.
package steps

import (
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/steps/process"
	"github.com/aetherflow/aetherflow/internal/steps/withlock"
	afstore "github.com/aetherflow/aetherflow/internal/store"
)

// RegisterBuiltins adds with_lock and external.process to reg. Called
// explicitly by whatever assembles a run (cmd/aetherflow or a test
// harness), the same explicit-registration convention used by
// internal/connector.RegisterBuiltins.
func RegisterBuiltins(reg *registry.StepRegistry, locks afstore.LockStore) {
	reg.Register("with_lock", withlock.NewConstructor(locks, reg))
	reg.Register("external.process", process.NewConstructor())
}
