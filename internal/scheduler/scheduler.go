// Package scheduler runs backup and retention jobs on cron schedules.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"dbguardian/internal/logging"
)

// Job is one schedulable unit of work
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with logging and graceful shutdown. Job
// errors are logged, never fatal: a failed nightly backup must not stop the
// following night's run.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// New creates an idle scheduler using standard 5-field cron expressions
func New(logger *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// AddJob registers a named job on a cron schedule
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.WithField("job", name).Info("scheduled job starting")
		if err := job(context.Background()); err != nil {
			s.logger.WithField("job", name).Errorf("scheduled job failed: %v", err)
			return
		}
		s.logger.WithField("job", name).Info("scheduled job finished")
	})
	return err
}

// Start begins running the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and blocks until running jobs complete
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
