package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/millwright-ai/millwright/internal/runtime"
)

const defaultStaleAfter = 24 * time.Hour

// Runner executes scheduler jobs by dispatching to action-specific handlers.
// Job output goes to the channel writer named by the job's channel_id.
type Runner struct {
	plant      *plant.Store
	writers    map[string]runtime.ResponseWriter
	staleAfter time.Duration
}

// NewRunner constructs a runner over the plant store and the registered
// channel writers. staleAfter bounds how old the newest sensor reading may be
// before the digest flags the equipment; zero means 24 hours.
func NewRunner(plantStore *plant.Store, writers map[string]runtime.ResponseWriter, staleAfter time.Duration) *Runner {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Runner{plant: plantStore, writers: writers, staleAfter: staleAfter}
}

// Run executes one job action and returns the text sent to the channel.
func (r *Runner) Run(ctx context.Context, job Job) (string, error) {
	writer, ok := r.writers[job.ChannelID]
	if !ok {
		logging.Logger().Warn(
			"scheduled job skipped: unknown channel",
			"job_id", job.ID,
			"channel_id", job.ChannelID,
		)
		return "", nil
	}

	switch job.Action {
	case ActionSendMessage:
		message, _ := job.Args["message"].(string)
		if strings.TrimSpace(message) == "" {
			return "", errors.New("send_message requires a message argument")
		}
		if err := writer.WriteMessage(ctx, message); err != nil {
			return "", fmt.Errorf("send message: %w", err)
		}
		return message, nil
	case ActionMaintenanceDigest:
		if r.plant == nil {
			return "", errors.New("maintenance_digest requires a plant store")
		}
		digest, err := r.buildDigest(ctx)
		if err != nil {
			return "", err
		}
		if err := writer.WriteMessage(ctx, digest); err != nil {
			return "", fmt.Errorf("send digest: %w", err)
		}
		return digest, nil
	default:
		return "", fmt.Errorf("unsupported action %q", job.Action)
	}
}

func (r *Runner) buildDigest(ctx context.Context) (string, error) {
	open, err := r.plant.OpenWorkOrders(ctx)
	if err != nil {
		return "", fmt.Errorf("list open work orders: %w", err)
	}
	cutoff := time.Now().Add(-r.staleAfter)
	stale, err := r.plant.StaleSensorEquipment(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("list stale sensor equipment: %w", err)
	}

	var b strings.Builder
	b.WriteString("Maintenance digest\n")

	if len(open) == 0 {
		b.WriteString("No open work orders.\n")
	} else {
		fmt.Fprintf(&b, "%d open work orders:\n", len(open))
		for _, wo := range open {
			fmt.Fprintf(&b, "  %s [%s/%s] %s: %s\n", wo.ID, wo.Status, wo.Priority, wo.EquipmentID, wo.Title)
		}
	}

	if len(stale) == 0 {
		b.WriteString("All equipment reported sensor data recently.")
	} else {
		fmt.Fprintf(&b, "%d equipment with no sensor data since %s:\n", len(stale), cutoff.Format(time.RFC3339))
		for _, eq := range stale {
			fmt.Fprintf(&b, "  %s %s (%s, %s)\n", eq.ID, eq.Name, eq.Kind, eq.Area)
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
