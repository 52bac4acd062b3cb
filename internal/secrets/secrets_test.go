package secrets_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthroughReturnsValueUnchanged(t *testing.T) {
	h := secrets.Passthrough{}
	v, err := h.Decode(context.Background(), "literal-value")
	require.NoError(t, err)
	assert.Equal(t, "literal-value", v)
}

func TestEnvHookResolvesReference(t *testing.T) {
	t.Setenv("WAREHOUSE_DSN", "postgres://prod")
	h := secrets.EnvHook{}

	v, err := h.Decode(context.Background(), "env:WAREHOUSE_DSN")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prod", v)
}

func TestEnvHookPassesThroughNonReferencedValues(t *testing.T) {
	h := secrets.EnvHook{}
	v, err := h.Decode(context.Background(), "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)
}

func TestEnvHookFailsOnMissingVariable(t *testing.T) {
	h := secrets.EnvHook{}
	_, err := h.Decode(context.Background(), "env:DOES_NOT_EXIST_1234")
	require.Error(t, err)
}

func TestEnvHookExpandEnvAppliesToEveryValue(t *testing.T) {
	t.Setenv("API_TOKEN", "tok-1")
	h := secrets.EnvHook{}

	out, err := h.ExpandEnv(context.Background(), map[string]string{
		"token": "env:API_TOKEN",
		"plain": "unchanged",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", out["token"])
	assert.Equal(t, "unchanged", out["plain"])
}

func TestFileHookResolvesSecretReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	data, err := json.Marshal(map[string]string{"db_password": "s3cr3t"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	h, err := secrets.NewFileHook(path)
	require.NoError(t, err)

	v, err := h.Decode(context.Background(), "secret:db_password")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)
}

func TestFileHookFailsOnMissingSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	h, err := secrets.NewFileHook(path)
	require.NoError(t, err)

	_, err = h.Decode(context.Background(), "secret:missing")
	require.Error(t, err)
}

func TestLoadDefaultsToPassthroughWhenUnconfigured(t *testing.T) {
	hook, err := secrets.Load(&afconfig.Settings{})
	require.NoError(t, err)
	assert.IsType(t, secrets.Passthrough{}, hook)
}

func TestLoadInfersFileModuleFromSecretsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"k":"v"}`), 0o600))

	hook, err := secrets.Load(&afconfig.Settings{SecretsPath: path})
	require.NoError(t, err)

	v, err := hook.Decode(context.Background(), "secret:k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestLoadRejectsUnknownModule(t *testing.T) {
	_, err := secrets.Load(&afconfig.Settings{SecretsModule: "vault"})
	require.Error(t, err)
}
