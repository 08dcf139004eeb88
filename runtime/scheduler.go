package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/travel/memory"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 5 * time.Minute

// Cleaner deletes memory older than a number of days.
type Cleaner interface {
	CleanupOldData(ctx context.Context, daysOld int) (memory.CleanupReport, error)
}

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules. Runs of the same job
// never overlap.
type Scheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	names   []string
}

// NewScheduler creates a scheduler. Schedules accept the standard five-field
// cron syntax and descriptors such as "@daily" or "@every 1m".
func NewScheduler(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:       cron.New(),
		jobTimeout: DefaultJobTimeout,
		logger:     logger,
		baseCtx:    context.Background(),
	}
}

// Add registers job under name on schedule.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, s.wrap(name, job))
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, schedule, err)
	}
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Scheduled job")
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *Scheduler) wrap(name string, job Job) func() {
	var running sync.Mutex
	return func() {
		if !running.TryLock() {
			s.logger.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
			return
		}
		defer running.Unlock()

		s.mu.Lock()
		base := s.baseCtx
		s.mu.Unlock()
		ctx, cancel := context.WithTimeout(base, s.jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Str("job", name).Err(err).Msg("Job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Job finished")
	}
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info().Strs("jobs", s.Jobs()).Msg("Starting scheduler")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped: context cancelled")
}

// RetentionJob deletes memory older than daysOld days.
func RetentionJob(cleaner Cleaner, daysOld int, logger zerolog.Logger) Job {
	logger = logger.With().Str("component", "retention").Logger()
	return func(ctx context.Context) error {
		report, err := cleaner.CleanupOldData(ctx, daysOld)
		if err != nil {
			return fmt.Errorf("cleanup old data: %w", err)
		}
		logger.Info().
			Int64("turns", report.Turns).
			Int64("facts", report.Facts).
			Int64("summaries", report.Summaries).
			Int64("embeddings", report.Embeddings).
			Msg("Retention sweep finished")
		return nil
	}
}
