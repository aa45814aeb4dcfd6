package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/millwright-ai/millwright/internal/agent"
	"github.com/millwright-ai/millwright/internal/channels"
	"github.com/millwright-ai/millwright/internal/commands"
	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/runtime"
	"github.com/millwright-ai/millwright/internal/scheduler"
	"github.com/millwright-ai/millwright/internal/session"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the server with the scheduler and enabled channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			warnStartupConditions(cfg, report)

			logging.Logger().Info(
				"starting server",
				"plant", cfg.Plant,
				"providers", strings.Join(cfg.Chat.Providers, ","),
				"data_dir", cfg.DataDir(),
			)

			pidFilePath := cfg.PIDPath()
			if err := os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
				return fmt.Errorf("write pid file %q: %w", pidFilePath, err)
			}
			defer func() {
				os.Remove(pidFilePath)
			}()

			plantStore, err := plant.Open(cfg.PlantDBPath())
			if err != nil {
				return err
			}
			defer plantStore.Close()

			jobStore := scheduler.NewStore(cfg.JobsPath())
			writers := map[string]runtime.ResponseWriter{
				// Scheduled jobs addressed to the cli channel print to the
				// server's stdout.
				"cli": &singleShotWriter{out: cmd.OutOrStdout()},
			}

			var (
				telegramListener *channels.TelegramListener
				telegramRouter   commands.Router
				telegramAgent    *agent.Agent
			)
			telegramCfg := cfg.TelegramChannel()
			if telegramCfg.Enabled {
				deps, err := buildChatDeps(cfg, plantStore)
				if err != nil {
					return err
				}
				telegramAgent = deps.newAgent(cfg, session.New(cfg.SessionPath("telegram")))
				telegramListener = channels.NewTelegram(telegramCfg.Token, telegramCfg.AllowedChatIDs)
				telegramRouter = commands.Router{
					Commands: commands.New(telegramAgent, jobStore, deps.costs),
					Next:     telegramAgent,
				}
				if len(telegramCfg.AllowedChatIDs) > 0 {
					// Scheduled jobs for the telegram channel address the
					// first allow-listed chat.
					writers["telegram"] = telegramListener.Writer(telegramCfg.AllowedChatIDs[0])
				}
			}

			service := scheduler.NewService(jobStore, scheduler.NewRunner(plantStore, writers, 0))

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := service.Start(runCtx); err != nil {
				return err
			}

			var wg sync.WaitGroup
			if telegramListener != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := telegramListener.Listen(runCtx, telegramRouter); err != nil && !errors.Is(err, context.Canceled) {
						logging.Logger().Error("telegram channel stopped", "error", err)
					}
				}()
			}

			<-runCtx.Done()
			wg.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := service.Stop(shutdownCtx); err != nil {
				return err
			}
			if telegramAgent != nil {
				if err := telegramAgent.Flush(shutdownCtx); err != nil {
					logging.Logger().Warn("flushing agent state", "error", err)
				}
			}
			logging.Logger().Info("server stopped")
			return nil
		},
	}
}
