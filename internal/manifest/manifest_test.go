package manifest_test

import (
	"testing"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	"github.com/aetherflow/aetherflow/internal/manifest"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
version: 1
mode: internal_fast
bundle:
  source:
    type: local
    location: /bundles/nightly
  layout:
    flows: flows
    profiles: profiles
    plugins: plugins
zip_drivers: []
env_files:
  - type: dotenv
    path: /bundles/nightly/.env
    optional: true
`

func TestParseValidManifest(t *testing.T) {
	m, err := manifest.Parse([]byte(validManifest))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, afconfig.ModeInternalFast, m.Mode)
	assert.Equal(t, manifest.SourceLocal, m.Bundle.Source.Type)
	assert.Equal(t, "/bundles/nightly", m.Bundle.Source.Location)
	require.Len(t, m.EnvFiles, 1)
	assert.Equal(t, "dotenv", m.EnvFiles[0].Type)
	assert.True(t, m.EnvFiles[0].Optional)
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := manifest.Parse([]byte(validManifest + "\nbogus_key: true\n"))
	require.Error(t, err)
	var specErr *aferrors.SpecError
	require.ErrorAs(t, err, &specErr)
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	_, err := manifest.Parse([]byte(`
version: 2
mode: internal_fast
bundle:
  source: {type: local, location: /x}
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownMode(t *testing.T) {
	_, err := manifest.Parse([]byte(`
version: 1
mode: turbo
bundle:
  source: {type: local, location: /x}
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownSourceType(t *testing.T) {
	_, err := manifest.Parse([]byte(`
version: 1
mode: internal_fast
bundle:
  source: {type: ftp, location: /x}
`))
	require.Error(t, err)
}

func TestParseRejectsEmptySourceLocation(t *testing.T) {
	_, err := manifest.Parse([]byte(`
version: 1
mode: internal_fast
bundle:
  source: {type: local, location: ""}
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownEnvFileType(t *testing.T) {
	_, err := manifest.Parse([]byte(`
version: 1
mode: internal_fast
bundle:
  source: {type: local, location: /x}
env_files:
  - type: toml
    path: /x/.env
`))
	require.Error(t, err)
}

func TestAllowsDriverPermitsEverythingOutsideEnterpriseMode(t *testing.T) {
	m := &manifest.Manifest{Mode: afconfig.ModeInternalFast}
	assert.True(t, m.AllowsDriver("anything"))
}

func TestAllowsDriverEnforcesAllowlistInEnterpriseMode(t *testing.T) {
	m := &manifest.Manifest{Mode: afconfig.ModeEnterprise, ZipDrivers: []string{"postgres"}}
	assert.True(t, m.AllowsDriver("postgres"))
	assert.False(t, m.AllowsDriver("mysql"))
}
