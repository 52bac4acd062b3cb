package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "aetherflow",
		Short:         "Run-once YAML workflow engine for ops-grade ETL/ELT/automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCommand())
	root.AddCommand(newRunCommand())
	return root
}
