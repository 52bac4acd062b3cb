package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	afconfig "github.com/aetherflow/aetherflow/internal/config"
	afconnector "github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/envfile"
	aflog "github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/internal/manifest"
	"github.com/aetherflow/aetherflow/internal/observer"
	"github.com/aetherflow/aetherflow/internal/registry"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/aetherflow/aetherflow/internal/store/sqlite"
	afsteps "github.com/aetherflow/aetherflow/internal/steps"
	aferrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/spec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var runID string
	var manifestPath string
	var profilesPath string
	var allowStaleBundle bool

	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Execute a flow's jobs and steps sequentially, resuming a prior run_id if given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// allowStaleBundle is part of the caller-surface contract but
			// has no effect: the engine fetches no bundle for any
			// bundle.source.type, so there is nothing that can go stale.
			_ = allowStaleBundle

			summary, err := runFlow(cmd.Context(), args[0], runID, manifestPath, profilesPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "resume the run with this identifier; a new one is generated if omitted")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "path to a bundle manifest document")
	cmd.Flags().StringVar(&profilesPath, "profiles", "", "path to a profiles document, overriding AETHERFLOW_PROFILES_FILE")
	cmd.Flags().BoolVar(&allowStaleBundle, "allow-stale-bundle", false, "accepted for caller-surface compatibility; this engine does not fetch remote bundles")

	return cmd
}

func runFlow(ctx context.Context, flowPath, runID, manifestPath, profilesPath string) (runner.Summary, error) {
	data, err := os.ReadFile(flowPath)
	if err != nil {
		return runner.Summary{}, err
	}
	flow, err := spec.ParseFlow(data)
	if err != nil {
		return runner.Summary{}, err
	}

	processEnv := envToMap(os.Environ())

	settings, err := loadSettings(processEnv)
	if err != nil {
		return runner.Summary{}, err
	}

	var manifestEnvFiles []afconfig.EnvFileSpec
	if manifestPath != "" {
		mdata, err := os.ReadFile(manifestPath)
		if err != nil {
			return runner.Summary{}, err
		}
		bundle, err := manifest.Parse(mdata)
		if err != nil {
			return runner.Summary{}, err
		}
		for name, res := range flow.Resources {
			if !bundle.AllowsDriver(res.Driver) {
				return runner.Summary{}, &aferrors.SpecError{
					Path:    fmt.Sprintf("resources.%s.driver", name),
					Message: fmt.Sprintf("driver %q is not in the manifest's zip_drivers allowlist", res.Driver),
				}
			}
		}
		manifestEnvFiles = bundle.EnvFiles
	}

	profiles, err := loadProfiles(settings, profilesPath)
	if err != nil {
		return runner.Summary{}, err
	}

	env, err := envfile.Build(processEnv, settings.EnvFiles, manifestEnvFiles)
	if err != nil {
		return runner.Summary{}, err
	}

	statePath, err := resolver.Render(flow.Flow.State.Path, resolver.Root{"env": toInterfaceMap(env)})
	if err != nil {
		return runner.Summary{}, err
	}

	st, err := sqlite.Open(sqlite.Config{Path: statePath, WAL: true})
	if err != nil {
		return runner.Summary{}, err
	}
	defer st.Close()

	connectors := registry.NewConnectorRegistry()
	afconnector.RegisterBuiltins(connectors)

	stepRegistry := registry.NewStepRegistry()
	afsteps.RegisterBuiltins(stepRegistry, st)

	secretsHook, err := secrets.Load(settings)
	if err != nil {
		return runner.Summary{}, err
	}

	logger := aflog.New(aflog.FromEnv(env))
	obs, err := observer.New(logger, nil, nil, prometheus.DefaultRegisterer)
	if err != nil {
		return runner.Summary{}, err
	}

	r, err := runner.New(connectors, stepRegistry, secretsHook, settings, obs)
	if err != nil {
		return runner.Summary{}, err
	}

	return r.Run(ctx, flow, profiles, runner.Options{
		RunID:            runID,
		ProcessEnv:       processEnv,
		ExternalEnvFiles: settings.EnvFiles,
		ManifestEnvFiles: manifestEnvFiles,
		Store:            st,
	})
}

func loadSettings(processEnv map[string]string) (*afconfig.Settings, error) {
	settings, err := afconfig.FromEnv(processEnv)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, &missingEnvError{cause: err}
	}
	return settings, nil
}

func loadProfiles(settings *afconfig.Settings, override string) (map[string]spec.ProfileSpec, error) {
	path := override
	if path == "" {
		path = settings.ProfilesFile
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return spec.ParseProfiles(data)
	}
	if settings.ProfilesInline != "" {
		return spec.ParseProfilesJSON([]byte(settings.ProfilesInline))
	}
	return map[string]spec.ProfileSpec{}, nil
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
