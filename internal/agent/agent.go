package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/millwright-ai/millwright/internal/costs"
	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/provider"
	runtimeapi "github.com/millwright-ai/millwright/internal/runtime"
	"github.com/millwright-ai/millwright/internal/tools"
)

const (
	defaultRequestTimeout = 60 * time.Second

	// backgroundTimeout bounds fire-and-forget persistence and cost writes.
	backgroundTimeout = 10 * time.Second
)

// SessionStore persists the external conversation view: per turn, the newest
// user message, the final assistant message, and the tools used. Tool turns
// are scaffolding and never reach the store.
type SessionStore interface {
	Load(ctx context.Context) ([]provider.ChatMessage, error)
	AppendExchange(ctx context.Context, user, assistant provider.ChatMessage, toolsUsed []string) error
	Reset(ctx context.Context) error
}

// Options configures an Agent beyond its provider and tool dependencies.
type Options struct {
	// Sessions persists history across restarts. Nil disables persistence.
	Sessions SessionStore
	// Costs records token usage. Nil disables cost tracking.
	Costs        *costs.Tracker
	SystemPrompt string
	// MaxIterations bounds tool rounds per turn.
	MaxIterations int
	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration
	// Models maps provider name to configured model, for cost records.
	Models map[string]string
	// DailyLimitUSD and MonthlyLimitUSD are soft spend limits. Exceeding one
	// logs a warning; it never blocks requests.
	DailyLimitUSD   float64
	MonthlyLimitUSD float64
}

// Agent implements the runtime Handler for one conversation.
type Agent struct {
	selector        *provider.Selector
	dispatcher      *tools.Dispatcher
	sessions        SessionStore
	costs           *costs.Tracker
	systemPrompt    string
	maxIter         int
	requestTimeout  time.Duration
	models          map[string]string
	dailyLimitUSD   float64
	monthlyLimitUSD float64

	mu            sync.Mutex
	history       []provider.ChatMessage
	historyLoaded bool

	background sync.WaitGroup
}

// New creates a conversation-scoped Agent.
func New(selector *provider.Selector, dispatcher *tools.Dispatcher, opts Options) *Agent {
	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Agent{
		selector:        selector,
		dispatcher:      dispatcher,
		sessions:        opts.Sessions,
		costs:           opts.Costs,
		systemPrompt:    systemPrompt,
		maxIter:         maxIter,
		requestTimeout:  requestTimeout,
		models:          opts.Models,
		dailyLimitUSD:   opts.DailyLimitUSD,
		monthlyLimitUSD: opts.MonthlyLimitUSD,
	}
}

// HandleMessage processes one inbound message and writes the assistant
// response. Provider selection happens per message, so a backend that went
// away between turns falls back to the next configured one.
func (a *Agent) HandleMessage(ctx context.Context, w runtimeapi.ResponseWriter, msg *runtimeapi.Message) error {
	if w == nil {
		return errors.New("response writer is required")
	}
	if msg == nil {
		return errors.New("message is required")
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if err := a.ensureHistoryLoaded(ctx); err != nil {
		// A broken session file must not block the conversation.
		logging.Logger().Warn("session history load failed; starting fresh", "err", err)
	}

	prov, err := a.selector.Pick(ctx)
	if err != nil {
		return err
	}

	user := provider.UserMessage(text)
	a.mu.Lock()
	transcript := newTranscript(a.history, user)
	a.mu.Unlock()

	result, _, err := Run(ctx, prov, a.dispatcher, a.systemPrompt, transcript, a.maxIter, a.requestTimeout)
	if err != nil {
		var callErr *provider.CallError
		if errors.As(err, &callErr) {
			// Force a fresh availability probe before the next pick.
			a.selector.Invalidate(callErr.Provider)
		}
		return err
	}

	assistant := provider.AssistantMessage(result.FinalText, nil)
	a.mu.Lock()
	a.history = append(a.history, user, assistant)
	a.mu.Unlock()

	a.persistExchangeAsync(user, assistant, result.ToolsUsed)
	a.recordUsageAsync(result)

	return w.WriteMessage(ctx, result.FinalText)
}

// Reset clears in-memory and persisted history.
func (a *Agent) Reset(ctx context.Context) error {
	a.mu.Lock()
	a.history = nil
	a.historyLoaded = true
	a.mu.Unlock()

	if a.sessions == nil {
		return nil
	}
	return a.sessions.Reset(ctx)
}

// Flush waits for in-flight background persistence to finish, for shutdown.
func (a *Agent) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) ensureHistoryLoaded(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyLoaded || a.sessions == nil {
		a.historyLoaded = true
		return nil
	}

	history, err := a.sessions.Load(ctx)
	a.historyLoaded = true
	if err != nil {
		a.history = nil
		return err
	}
	a.history = sanitizeHistory(history)
	return nil
}

// persistExchangeAsync writes the turn to the session store without blocking
// the response. Failures are logged and dropped.
func (a *Agent) persistExchangeAsync(user, assistant provider.ChatMessage, toolsUsed []string) {
	if a.sessions == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := a.sessions.AppendExchange(ctx, user, assistant, toolsUsed); err != nil {
			logging.Logger().Warn("session persist failed", "err", err)
		}
	}()
}

// recordUsageAsync appends a cost record for the turn and checks soft spend
// limits. Provider-reported cost wins over the local pricing table.
func (a *Agent) recordUsageAsync(result *Result) {
	if a.costs == nil {
		return
	}
	usage := result.Usage
	providerName := result.Provider
	model := a.models[providerName]

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		rec := costs.Record{
			Provider:     providerName,
			Model:        model,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.TotalTokens,
		}
		if usage.CostUSD != nil {
			rec.CostUSD = *usage.CostUSD
		} else if estimated, ok := costs.EstimateUSD(providerName, model, usage.InputTokens, usage.OutputTokens); ok {
			rec.CostUSD = estimated
		}

		if err := a.costs.Append(ctx, rec); err != nil {
			logging.Logger().Warn("usage record append failed", "err", err)
			return
		}
		a.warnOnSpendLimits(ctx)
	}()
}

func (a *Agent) warnOnSpendLimits(ctx context.Context) {
	if a.dailyLimitUSD <= 0 && a.monthlyLimitUSD <= 0 {
		return
	}
	spend, err := a.costs.Spend(ctx, time.Now())
	if err != nil {
		logging.Logger().Warn("spend total read failed", "err", err)
		return
	}
	if a.dailyLimitUSD > 0 && spend.TodayUSD >= a.dailyLimitUSD {
		logging.Logger().Warn("daily spend limit reached", "today_usd", spend.TodayUSD, "limit_usd", a.dailyLimitUSD)
	}
	if a.monthlyLimitUSD > 0 && spend.MonthUSD >= a.monthlyLimitUSD {
		logging.Logger().Warn("monthly spend limit reached", "month_usd", spend.MonthUSD, "limit_usd", a.monthlyLimitUSD)
	}
}
