// Package connector defines the contract a resource's constructed
// handle implements, and the constructor signature the registry keys by
// (kind, driver). Concrete drivers (http/rest, noop) live under
// internal/connector; this package only defines the seam.
package connector

// Connector is a constructed, ready-to-use resource handle. Drivers own
// whatever session state they need and release it on Close, which the
// runner calls when the run ends unless connectors are cached at process
// scope; process-scoped connectors are not closed by the runner.
type Connector interface {
	Close() error
}

// Constructor builds a Connector from final, decoded config/options —
// the product of profile overlay, env-template rendering, and the
// decode hook, in that order.
type Constructor func(config, options map[string]interface{}) (Connector, error)
