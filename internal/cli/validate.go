package cli

import (
	"fmt"

	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/tools"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without starting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			// Building the selector and tool registry surfaces bad provider
			// names and unknown tool names before a real start would.
			if _, err := selectorFactory(cfg); err != nil {
				return err
			}
			plantStore, err := plant.Open(cfg.PlantDBPath())
			if err != nil {
				return err
			}
			defer plantStore.Close()
			if _, err := tools.FromConfig(cfg.Tools.Enabled, tools.Builtins(plantStore)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, warning := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}
}
