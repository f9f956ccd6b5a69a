// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// Observer is notified after every job run.
type Observer interface {
	ObserveJob(job string, err error)
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron     *cron.Cron
	log      zerolog.Logger
	observer Observer
}

// New creates a scheduler whose schedules are evaluated in loc.
func New(log zerolog.Logger, loc *time.Location, observer Observer) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:      log.With().Str("component", "scheduler").Logger(),
		observer: observer,
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a six-field cron schedule.
// Schedule examples:
//   - "0 30 8 * * *"   - 08:30 every day
//   - "0 0 6 * * *"    - 06:00 every day
//   - "@every 1h"      - Every hour
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()
	if s.observer != nil {
		s.observer.ObserveJob(job.Name(), err)
	}
	if err == nil {
		s.log.Debug().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job completed")
	}
	return err
}
