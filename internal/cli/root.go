// Package cli wires Cobra subcommands to application dependencies; it is a thin controller with no business logic.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/millwright-ai/millwright/internal/bootstrap"
	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/provider"
	"github.com/spf13/cobra"
)

var selectorFactory = provider.NewSelectorFromConfig

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "millwright",
		Short: "Millwright CLI",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logging.SetLevel(slog.LevelInfo)
			} else {
				logging.SetLevel(slog.LevelWarn)
			}

			// The config and version commands only print and should not
			// trigger bootstrap/first-run onboarding behavior.
			switch cmd.Name() {
			case "config", "version":
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			result, err := bootstrap.Initialize(cfg)
			if err != nil {
				return err
			}

			if result.CreatedConfig {
				// First-run bootstrap is an onboarding path, not a fatal error.
				// Print guidance and exit cleanly so logs do not report failures.
				if _, err := fmt.Fprintf(
					cmd.ErrOrStderr(),
					"First run setup complete.\nAdd an API key to the config file: %s\nThen run millwright again.\n",
					cfg.ConfigPath(),
				); err != nil {
					return err
				}
				os.Exit(0)
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to `millwright start` when no subcommand is provided.
			startCmd, _, err := cmd.Find([]string{"start"})
			if err != nil {
				return err
			}
			startCmd.SetContext(cmd.Context())
			return startCmd.RunE(startCmd, args)
		},
	}

	root.AddCommand(newConfigCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newVersionCmd())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging (info level)")

	return root
}
