package connector_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPConnectorAppliesBearerAuthAndHeaders(t *testing.T) {
	var gotAuth, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotHeader = r.Header.Get("X-Trace")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctor := connector.NewHTTPConstructor()
	conn, err := ctor(
		map[string]interface{}{
			"base_url": srv.URL,
			"headers":  map[string]interface{}{"X-Trace": "abc123"},
			"auth":     map[string]interface{}{"type": "bearer", "token": "s3cr3t"},
		},
		nil,
	)
	require.NoError(t, err)
	defer conn.Close()

	httpConn := conn.(*connector.HTTPConnector)
	resp, err := httpConn.Do(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	assert.Equal(t, "Bearer s3cr3t", gotAuth)
	assert.Equal(t, "abc123", gotHeader)
}

func TestHTTPConnectorRequiresBaseURL(t *testing.T) {
	ctor := connector.NewHTTPConstructor()
	_, err := ctor(map[string]interface{}{}, nil)
	require.Error(t, err)
}

func TestNoopConnectorAlwaysSucceeds(t *testing.T) {
	ctor := connector.NewNoopConstructor()
	conn, err := ctor(nil, nil)
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}
