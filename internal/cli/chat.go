package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/millwright-ai/millwright/internal/agent"
	"github.com/millwright-ai/millwright/internal/channels"
	"github.com/millwright-ai/millwright/internal/commands"
	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/costs"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/provider"
	"github.com/millwright-ai/millwright/internal/runtime"
	"github.com/millwright-ai/millwright/internal/scheduler"
	"github.com/millwright-ai/millwright/internal/session"
	"github.com/millwright-ai/millwright/internal/tools"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a message (or start interactive chat without -p)",
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

			plantStore, err := plant.Open(cfg.PlantDBPath())
			if err != nil {
				return err
			}
			defer plantStore.Close()

			deps, err := buildChatDeps(cfg, plantStore)
			if err != nil {
				return err
			}

			trimmedPrompt := strings.TrimSpace(prompt)
			if trimmedPrompt != "" {
				if strings.HasPrefix(trimmedPrompt, "/") {
					return fmt.Errorf("slash commands are not supported in one-shot -p mode")
				}
				// One-shot prompts keep no session so repeated invocations
				// stay independent.
				handler := deps.newAgent(cfg, nil)
				writer := &singleShotWriter{out: cmd.OutOrStdout()}
				if err := handler.HandleMessage(cmd.Context(), writer, &runtime.Message{Text: trimmedPrompt}); err != nil {
					return err
				}
				return flushAgent(handler)
			}

			handler := deps.newAgent(cfg, session.New(cfg.SessionPath("cli")))
			defer flushAgent(handler)

			listener := channels.NewCLI(cmd.InOrStdin(), cmd.OutOrStdout())
			router := commands.Router{
				Commands: commands.New(handler, scheduler.NewStore(cfg.JobsPath()), deps.costs),
				Next:     handler,
			}
			return listener.Listen(cmd.Context(), router)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt message")

	return cmd
}

// chatDeps are the channel-independent pieces of the chat stack. Channels
// share one provider selector, tool dispatcher, and cost tracker so
// availability probes and spend accounting are not duplicated per channel.
type chatDeps struct {
	selector   *provider.Selector
	dispatcher *tools.Dispatcher
	costs      *costs.Tracker
	models     map[string]string
}

func buildChatDeps(cfg *config.Config, plantStore *plant.Store) (*chatDeps, error) {
	selector, err := selectorFactory(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := tools.FromConfig(cfg.Tools.Enabled, tools.Builtins(plantStore))
	if err != nil {
		return nil, err
	}

	models := make(map[string]string, len(cfg.Chat.Providers))
	for _, name := range cfg.Chat.Providers {
		models[name] = cfg.Provider(name).Model
	}

	return &chatDeps{
		selector:   selector,
		dispatcher: tools.NewDispatcher(registry),
		costs:      costs.New(cfg.CostsPath()),
		models:     models,
	}, nil
}

// newAgent builds one channel's agent over the shared dependencies. A nil
// sessions store disables persistence, which one-shot mode relies on.
func (d *chatDeps) newAgent(cfg *config.Config, sessions agent.SessionStore) *agent.Agent {
	return agent.New(d.selector, d.dispatcher, agent.Options{
		Sessions:        sessions,
		Costs:           d.costs,
		SystemPrompt:    cfg.Chat.SystemPrompt,
		MaxIterations:   cfg.Chat.MaxIterations,
		RequestTimeout:  cfg.Chat.RequestTimeout,
		Models:          d.models,
		DailyLimitUSD:   cfg.Costs.DailyLimit,
		MonthlyLimitUSD: cfg.Costs.MonthlyLimit,
	})
}

// flushAgent waits briefly for async session and cost writes so records are
// not lost when the process exits right after a reply.
func flushAgent(handler *agent.Agent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return handler.Flush(ctx)
}

type singleShotWriter struct {
	out io.Writer
}

// WriteMessage writes one response message for one-shot prompt mode.
func (w *singleShotWriter) WriteMessage(_ context.Context, text string) error {
	fmt.Fprintln(w.out, text)
	return nil
}
