package errors_test

import (
	"errors"
	"testing"

	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverSyntaxErrorMessageIsFixed(t *testing.T) {
	err := &aferrors.ResolverSyntaxError{Source: "${env.X}"}
	assert.Equal(t, "Unsupported templating syntax. Use {{VAR}} or {{VAR:DEFAULT}}", err.Error())
}

func TestConnectorErrorUnwraps(t *testing.T) {
	cause := errors.New("dial failed")
	err := &aferrors.ConnectorError{Resource: "db", Kind: "http", Driver: "rest", Cause: cause}

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db")
}

func TestStepErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &aferrors.StepError{JobID: "j1", StepID: "s1", Cause: cause}
	require.ErrorIs(t, err, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, aferrors.Wrap(nil, "context"))
	assert.Nil(t, aferrors.Wrapf(nil, "context %d", 1))
}

func TestWrapPreservesChain(t *testing.T) {
	root := errors.New("root cause")
	wrapped := aferrors.Wrap(root, "additional context")
	require.ErrorIs(t, wrapped, root)
	assert.Contains(t, wrapped.Error(), "additional context")
}
