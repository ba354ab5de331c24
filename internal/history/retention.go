package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/observability"
)

type RetentionConfig struct {
	// Retention is the age after which entries are deleted.
	Retention time.Duration
	// Schedule is a standard five-field cron spec or a descriptor such as @daily.
	Schedule string
}

type RetentionSummary struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// RetentionService prunes old history entries on a cron schedule.
type RetentionService struct {
	Recorder Recorder
	Config   RetentionConfig
	Logger   *slog.Logger
	Clock    func() time.Time

	cron *cron.Cron
}

func (s *RetentionService) ensureDefaults() {
	if s.Config.Retention <= 0 {
		s.Config.Retention = 30 * 24 * time.Hour
	}
	if s.Config.Schedule == "" {
		s.Config.Schedule = "@daily"
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = observability.NopLogger()
	}
}

func (s *RetentionService) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Recorder == nil {
		return RetentionSummary{}, fmt.Errorf("recorder is required")
	}
	summary := RetentionSummary{Cutoff: s.Clock().Add(-s.Config.Retention)}
	deleted, err := s.Recorder.Prune(ctx, summary.Cutoff)
	if err != nil {
		return summary, err
	}
	summary.Deleted = deleted
	observability.AddHistoryPruned(deleted)
	return summary, nil
}

// Start registers the retention job and starts the scheduler. Stop must be
// called to release it.
func (s *RetentionService) Start(ctx context.Context) error {
	s.ensureDefaults()
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Config.Schedule, func() {
		summary, err := s.RunRetentionOnce(ctx)
		if err != nil {
			s.Logger.ErrorContext(ctx, "history retention failed", slog.Any("error", err))
			return
		}
		s.Logger.InfoContext(ctx, "history retention completed", slog.Any("summary", summary))
	}); err != nil {
		return fmt.Errorf("register retention job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish.
func (s *RetentionService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
