package cli

import (
	"fmt"

	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/runtime"
	"github.com/millwright-ai/millwright/internal/scheduler"
	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsAddCmd())
	cmd.AddCommand(newJobsRunCmd())
	cmd.AddCommand(newJobsDeleteCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			jobs, err := scheduler.NewStore(cfg.JobsPath()).List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "no scheduled jobs")
				return nil
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(out, "%s  %-8s  %-18s  %-10s  %q  %s\n",
					job.ID, state, job.Cron, job.Action, job.Description, job.ChannelID)
			}
			return nil
		},
	}
}

func newJobsAddCmd() *cobra.Command {
	var (
		description string
		cronSpec    string
		action      string
		channelID   string
		message     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scheduled job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var args map[string]any
			if message != "" {
				args = map[string]any{"message": message}
			}
			job, err := scheduler.NewStore(cfg.JobsPath()).Create(cmd.Context(), scheduler.CreateInput{
				Description: description,
				Cron:        cronSpec,
				Action:      scheduler.Action(action),
				Args:        args,
				ChannelID:   channelID,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created job %s (%s %s)\n", job.ID, job.Cron, job.Action)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "What the job does")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "Cron expression, five fields")
	cmd.Flags().StringVar(&action, "action", string(scheduler.ActionMaintenanceDigest), "Job action: send_message or maintenance_digest")
	cmd.Flags().StringVar(&channelID, "channel", "cli", "Channel the output is delivered to")
	cmd.Flags().StringVar(&message, "message", "", "Message text for the send_message action")

	return cmd
}

func newJobsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			plantStore, err := plant.Open(cfg.PlantDBPath())
			if err != nil {
				return err
			}
			defer plantStore.Close()

			// Manual runs print to the terminal regardless of the job's
			// channel; the server owns real channel delivery.
			out := &singleShotWriter{out: cmd.OutOrStdout()}
			writers := map[string]runtime.ResponseWriter{"cli": out, "telegram": out}

			jobStore := scheduler.NewStore(cfg.JobsPath())
			service := scheduler.NewService(jobStore, scheduler.NewRunner(plantStore, writers, 0))
			_, err = service.RunNow(cmd.Context(), args[0])
			return err
		},
	}
}

func newJobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := scheduler.NewStore(cfg.JobsPath()).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted job %s\n", args[0])
			return nil
		},
	}
}
