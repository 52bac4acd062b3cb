package connector

import afconnector "github.com/aetherflow/aetherflow/pkg/connector"

// NoopConnector is the kind "noop" driver "null" connector: it holds no
// session state and never fails to construct or close. Useful for
// flows under test that declare a resource purely to exercise the
// profile/resource pipeline without talking to anything real.
type NoopConnector struct{}

var _ afconnector.Connector = NoopConnector{}

// Close is a no-op.
func (NoopConnector) Close() error { return nil }

// NewNoopConstructor returns the registry constructor for kind "noop"
// driver "null".
func NewNoopConstructor() afconnector.Constructor {
	return func(_, _ map[string]interface{}) (afconnector.Connector, error) {
		return NoopConnector{}, nil
	}
}
