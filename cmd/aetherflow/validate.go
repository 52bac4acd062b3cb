package main

import (
	"fmt"
	"os"

	"github.com/aetherflow/aetherflow/pkg/spec"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var envStrict bool

	cmd := &cobra.Command{
		Use:   "validate <flow.yaml>",
		Short: "Parse and semantically validate a flow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			flow, err := spec.ParseFlow(data)
			if err != nil {
				return err
			}

			errs := spec.Validate(flow)
			if envStrict {
				env := envToMap(os.Environ())
				errs = append(errs, spec.ValidateEnvStrict(flow, env)...)
			}
			if len(errs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			for _, e := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), e)
			}
			return fmt.Errorf("%d validation error(s)", len(errs))
		},
	}

	cmd.Flags().BoolVar(&envStrict, "strict-env", false, "also fail on unresolved env.* template references")
	return cmd
}

// envToMap converts an os.Environ()-shaped slice into the string map
// every layer of the engine's environment handling expects.
func envToMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
