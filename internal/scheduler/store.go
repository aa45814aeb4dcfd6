// Package scheduler provides persistent job storage and cron execution for
// recurring plant maintenance tasks.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/store"
)

// Action identifies which deterministic operation a scheduled job executes.
type Action string

const (
	// ActionSendMessage sends a fixed message through a channel writer.
	ActionSendMessage Action = "send_message"
	// ActionMaintenanceDigest posts a summary of open work orders and
	// equipment with stale sensor data.
	ActionMaintenanceDigest Action = "maintenance_digest"
)

// Job is one persisted scheduled task in jobs.json.
type Job struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Cron        string         `json:"cron"`
	Action      Action         `json:"action"`
	Args        map[string]any `json:"args"`
	ChannelID   string         `json:"channel_id"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateInput contains fields required to create a job.
type CreateInput struct {
	Description string
	Cron        string
	Action      Action
	Args        map[string]any
	ChannelID   string
}

// Store manages CRUD operations for jobs persisted at one jobs.json path.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a job store persisting to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all jobs from jobs.json.
func (s *Store) List(ctx context.Context) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get returns one job by ID.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	target := strings.TrimSpace(id)
	if target == "" {
		return Job{}, errors.New("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.readLocked()
	if err != nil {
		return Job{}, err
	}
	for _, job := range jobs {
		if job.ID == target {
			return job, nil
		}
	}
	return Job{}, fmt.Errorf("job %s not found", target)
}

// Create validates and persists a new enabled job.
func (s *Store) Create(ctx context.Context, in CreateInput) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readLocked()
	if err != nil {
		return Job{}, err
	}

	now := time.Now().UTC()
	job := Job{
		ID:          newJobID(now),
		Description: strings.TrimSpace(in.Description),
		Cron:        strings.TrimSpace(in.Cron),
		Action:      in.Action,
		Args:        cloneArgs(in.Args),
		ChannelID:   strings.TrimSpace(in.ChannelID),
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateJob(job); err != nil {
		return Job{}, err
	}

	jobs = append(jobs, job)
	if err := s.writeLocked(jobs); err != nil {
		return Job{}, err
	}
	logging.Logger().Info(
		"scheduled job created",
		"job_id", job.ID,
		"description", job.Description,
		"cron", job.Cron,
		"action", job.Action,
		"channel_id", job.ChannelID,
	)
	return job, nil
}

// Delete removes one job by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := strings.TrimSpace(id)
	if target == "" {
		return errors.New("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, err := s.readLocked()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID != target {
			continue
		}
		jobs = append(jobs[:i], jobs[i+1:]...)
		if err := s.writeLocked(jobs); err != nil {
			return err
		}
		logging.Logger().Info("scheduled job deleted", "job_id", target)
		return nil
	}
	return fmt.Errorf("job %s not found", target)
}

func (s *Store) readLocked() ([]Job, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errors.New("jobs store path is required")
	}

	content, err := store.ReadFile(s.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return []Job{}, nil
	default:
		return nil, fmt.Errorf("read jobs file %s: %w", s.path, err)
	}

	if len(strings.TrimSpace(content)) == 0 {
		return []Job{}, nil
	}

	var jobs []Job
	if err := json.Unmarshal([]byte(content), &jobs); err != nil {
		return nil, fmt.Errorf("decode jobs file %s: %w", s.path, err)
	}
	for _, job := range jobs {
		if err := validateJob(job); err != nil {
			return nil, fmt.Errorf("invalid job %s: %w", job.ID, err)
		}
	}
	return jobs, nil
}

func (s *Store) writeLocked(jobs []Job) error {
	if strings.TrimSpace(s.path) == "" {
		return errors.New("jobs store path is required")
	}

	encoded, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	encoded = append(encoded, '\n')

	if err := store.WriteFile(s.path, encoded); err != nil {
		return fmt.Errorf("replace jobs file: %w", err)
	}
	return nil
}

func validateJob(job Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(job.Description) == "" {
		return errors.New("job description is required")
	}
	if strings.TrimSpace(job.ChannelID) == "" {
		return errors.New("job channel_id is required")
	}
	if err := validateAction(job.Action); err != nil {
		return err
	}
	return validateCron(job.Cron)
}

func validateAction(action Action) error {
	switch action {
	case ActionSendMessage, ActionMaintenanceDigest:
		return nil
	default:
		return fmt.Errorf("unsupported job action %s", action)
	}
}

func validateCron(spec string) error {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return errors.New("job cron is required")
	}
	if _, err := cron.ParseStandard(trimmed); err != nil {
		return fmt.Errorf("invalid cron expression %s: %w", spec, err)
	}
	return nil
}

func newJobID(now time.Time) string {
	return fmt.Sprintf("job_%d", now.UnixNano())
}

func cloneArgs(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
