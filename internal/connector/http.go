// Package connector provides reference resource drivers: an http/rest
// client and a noop/null connector used by tests and minimal flows that
// don't need a real backing system. Concrete drivers are explicitly
// out of scope for the core per spec (the core only needs the
// registry/constructor seam); these two exist to give the
// kind/driver/config/options/decode pipeline something real to
// exercise end to end, the way the teacher ships a reference
// ShellConnector (internal/action/shell/action.go) alongside its
// registry rather than leaving it abstract.
package connector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// HTTPConfig is the decoded shape of an http/rest resource's config.
type HTTPConfig struct {
	BaseURL        string
	Headers        map[string]string
	TimeoutSeconds int
	Auth           HTTPAuth
}

// HTTPAuth mirrors the teacher's auth application pattern
// (internal/connector/auth.go: applyBearerAuth/applyBasicAuth/applyAPIKeyAuth)
// narrowed to the three schemes an http/rest resource commonly needs.
type HTTPAuth struct {
	Type     string // "bearer", "basic", "api_key", or "" for none
	Token    string // bearer token, or api key value
	Username string // basic auth
	Password string // basic auth
	Header   string // api_key header name, default "X-API-Key"
}

// HTTPConnector issues requests against a configured base URL with a
// fixed auth scheme applied to every call.
type HTTPConnector struct {
	client  *http.Client
	baseURL string
	headers map[string]string
	auth    HTTPAuth
}

var _ afconnector.Connector = (*HTTPConnector)(nil)

// NewHTTPConstructor returns the registry constructor for kind "http"
// driver "rest".
func NewHTTPConstructor() afconnector.Constructor {
	return func(config, options map[string]interface{}) (afconnector.Connector, error) {
		cfg := decodeHTTPConfig(config, options)
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http connector requires config.base_url")
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return &HTTPConnector{
			client:  &http.Client{Timeout: timeout},
			baseURL: cfg.BaseURL,
			headers: cfg.Headers,
			auth:    cfg.Auth,
		}, nil
	}
}

func decodeHTTPConfig(config, options map[string]interface{}) HTTPConfig {
	cfg := HTTPConfig{Headers: map[string]string{}}
	cfg.BaseURL, _ = config["base_url"].(string)
	if to, ok := options["timeout_seconds"].(int); ok {
		cfg.TimeoutSeconds = to
	}
	if hdrs, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range hdrs {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}
	if authRaw, ok := config["auth"].(map[string]interface{}); ok {
		cfg.Auth.Type, _ = authRaw["type"].(string)
		cfg.Auth.Token, _ = authRaw["token"].(string)
		cfg.Auth.Username, _ = authRaw["username"].(string)
		cfg.Auth.Password, _ = authRaw["password"].(string)
		cfg.Auth.Header, _ = authRaw["header"].(string)
	}
	return cfg
}

// Do issues an HTTP request against path (relative to base_url), applying
// the connector's configured headers and auth scheme.
func (c *HTTPConnector) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, aferrors.Wrap(err, "building http request")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.applyAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, aferrors.Wrap(err, "executing http request")
	}
	return resp, nil
}

func (c *HTTPConnector) applyAuth(req *http.Request) {
	switch c.auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case "basic":
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	case "api_key":
		header := c.auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, c.auth.Token)
	}
}

// Close releases idle connections held by the underlying client.
func (c *HTTPConnector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
