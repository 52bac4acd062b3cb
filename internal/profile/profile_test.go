package profile_test

import (
	"context"
	"sync/atomic"
	"testing"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/profile"
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/secrets"
	afconnector "github.com/aetherflow/aetherflow/pkg/connector"
	"github.com/aetherflow/aetherflow/pkg/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	config, options map[string]interface{}
	closed          bool
}

func (c *fakeConnector) Close() error { c.closed = true; return nil }

func newCountingRegistry(builds *int32) *registry.ConnectorRegistry {
	reg := registry.NewConnectorRegistry()
	reg.Register("database", "postgres", func(config, options map[string]interface{}) (afconnector.Connector, error) {
		atomic.AddInt32(builds, 1)
		return &fakeConnector{config: config, options: options}, nil
	})
	return reg
}

func TestBuildRendersConfigAgainstEnvAndConstructsConnector(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"warehouse": {
			Kind:   "database",
			Driver: "postgres",
			Config: map[string]interface{}{"dsn": "{{env.WAREHOUSE_DSN}}"},
		},
	}
	env := map[string]string{"WAREHOUSE_DSN": "postgres://prod"}

	conns, err := b.Build(context.Background(), resources, nil, env)
	require.NoError(t, err)
	conn := conns["warehouse"].(*fakeConnector)
	assert.Equal(t, "postgres://prod", conn.config["dsn"])
	assert.Equal(t, int32(1), builds)
}

func TestBuildMergesProfileConfigOverridingBase(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"warehouse": {
			Kind:    "database",
			Driver:  "postgres",
			Profile: "prod",
			Config:  map[string]interface{}{"dsn": "base-dsn", "pool_size": 5},
		},
	}
	profiles := map[string]spec.ProfileSpec{
		"prod": {Config: map[string]interface{}{"dsn": "prod-dsn"}},
	}

	conns, err := b.Build(context.Background(), resources, profiles, nil)
	require.NoError(t, err)
	conn := conns["warehouse"].(*fakeConnector)
	assert.Equal(t, "prod-dsn", conn.config["dsn"])
	assert.EqualValues(t, 5, conn.config["pool_size"])
}

func TestBuildFailsOnUnknownProfile(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"warehouse": {Kind: "database", Driver: "postgres", Profile: "missing"},
	}

	_, err := b.Build(context.Background(), resources, nil, nil)
	require.Error(t, err)
}

func TestBuildAppliesDecodeHookToMarkedStandaloneField(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.EnvHook{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"warehouse": {
			Kind:   "database",
			Driver: "postgres",
			Config: map[string]interface{}{"password": "env:DB_PASSWORD"},
			Decode: map[string]interface{}{"password": true},
		},
	}
	t.Setenv("DB_PASSWORD", "hunter2")

	conns, err := b.Build(context.Background(), resources, nil, nil)
	require.NoError(t, err)
	conn := conns["warehouse"].(*fakeConnector)
	assert.Equal(t, "hunter2", conn.config["password"])
}

func TestBuildRejectsDecodeOnConcatenatedTemplate(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.EnvHook{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"warehouse": {
			Kind:   "database",
			Driver: "postgres",
			Config: map[string]interface{}{"password": "prefix-{{env.DB_PASSWORD}}"},
			Decode: map[string]interface{}{"password": true},
		},
	}

	_, err := b.Build(context.Background(), resources, nil, map[string]string{"DB_PASSWORD": "x"})
	require.Error(t, err)
}

func TestBuildRunScopeDeduplicatesIdenticalConnectorsWithinOneBuild(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeRun)

	resources := map[string]spec.ResourceSpec{
		"a": {Kind: "database", Driver: "postgres", Config: map[string]interface{}{"dsn": "same"}},
		"b": {Kind: "database", Driver: "postgres", Config: map[string]interface{}{"dsn": "same"}},
	}

	conns, err := b.Build(context.Background(), resources, nil, nil)
	require.NoError(t, err)
	assert.Same(t, conns["a"], conns["b"])
	assert.Equal(t, int32(1), builds)
}

func TestBuildNoneScopeNeverDeduplicates(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeNone)

	resources := map[string]spec.ResourceSpec{
		"a": {Kind: "database", Driver: "postgres", Config: map[string]interface{}{"dsn": "same"}},
		"b": {Kind: "database", Driver: "postgres", Config: map[string]interface{}{"dsn": "same"}},
	}

	conns, err := b.Build(context.Background(), resources, nil, nil)
	require.NoError(t, err)
	assert.NotSame(t, conns["a"], conns["b"])
	assert.Equal(t, int32(2), builds)
}

func TestBuildProcessScopeReusesConnectorAcrossBuildCalls(t *testing.T) {
	var builds int32
	reg := newCountingRegistry(&builds)
	b := profile.New(reg, secrets.Passthrough{}, afconfig.CacheScopeProcess)

	resources := map[string]spec.ResourceSpec{
		"a": {Kind: "database", Driver: "postgres", Config: map[string]interface{}{"dsn": "same"}},
	}

	conns1, err := b.Build(context.Background(), resources, nil, nil)
	require.NoError(t, err)
	conns2, err := b.Build(context.Background(), resources, nil, nil)
	require.NoError(t, err)

	assert.Same(t, conns1["a"], conns2["a"])
	assert.Equal(t, int32(1), builds)
}
