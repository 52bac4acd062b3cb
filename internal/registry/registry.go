// Package registry implements the name-to-constructor maps for
// connectors and steps, grounded on the teacher's
// internal/connector/registry.go (a mutex-guarded map plus a reference
// format combining two identifiers — there it's
// "connector_name.operation_name"; here a connector's registry key is
// "kind.driver" and a step's is its bare type name).
package registry

import (
	"fmt"
	"sync"

	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	afstep "github.com/aetherflow/aetherflow/pkg/step"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// ConnectorRegistry maps (kind, driver) pairs to connector constructors.
type ConnectorRegistry struct {
	mu           sync.RWMutex
	constructors map[string]afconnector.Constructor
}

// NewConnectorRegistry returns an empty registry; callers register
// built-in and any third-party drivers explicitly (there is no
// package-init magic here, by design: the runner's dependencies are
// explicit values it is handed, not hidden globals).
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{constructors: make(map[string]afconnector.Constructor)}
}

func connectorKey(kind, driver string) string {
	return kind + "." + driver
}

// Register adds a constructor for (kind, driver). Registering the same
// pair twice overwrites the previous constructor, matching the
// teacher's registry semantics.
func (r *ConnectorRegistry) Register(kind, driver string, ctor afconnector.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[connectorKey(kind, driver)] = ctor
}

// Build constructs a Connector for (kind, driver) from final config and
// options.
func (r *ConnectorRegistry) Build(kind, driver string, config, options map[string]interface{}) (afconnector.Connector, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[connectorKey(kind, driver)]
	r.mu.RUnlock()
	if !ok {
		return nil, &aferrors.ConnectorError{
			Kind:   kind,
			Driver: driver,
			Cause:  fmt.Errorf("no connector registered for kind %q driver %q", kind, driver),
		}
	}
	conn, err := ctor(config, options)
	if err != nil {
		return nil, &aferrors.ConnectorError{Kind: kind, Driver: driver, Cause: err}
	}
	return conn, nil
}

// StepRegistry maps a StepSpec.Type name to a step constructor.
type StepRegistry struct {
	mu           sync.RWMutex
	constructors map[string]afstep.Constructor
}

// NewStepRegistry returns an empty registry.
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{constructors: make(map[string]afstep.Constructor)}
}

// Register adds a constructor for typeName.
func (r *StepRegistry) Register(typeName string, ctor afstep.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[typeName] = ctor
}

// New constructs a fresh Step instance for typeName.
func (r *StepRegistry) New(typeName string) (afstep.Step, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &aferrors.SpecError{Path: "type", Message: fmt.Sprintf("no step registered for type %q", typeName)}
	}
	return ctor(), nil
}

// Types returns every registered step type name, primarily for
// diagnostics and validation error messages.
func (r *StepRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	return out
}
