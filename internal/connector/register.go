package connector

import "github.com/aetherflow/aetherflow/internal/registry"

// RegisterBuiltins adds the http/rest and noop/null drivers to reg.
// Called explicitly by whatever wires up a run (cmd/aetherflow or a
// test harness) rather than via package init(), so a registry's
// contents are always traceable to an explicit call site — consistent
// with keeping configuration and registration as explicit values
// instead of hidden globals.
func RegisterBuiltins(reg *registry.ConnectorRegistry) {
	reg.Register("http", "rest", NewHTTPConstructor())
	reg.Register("noop", "null", NewNoopConstructor())
}
