// Package scheduler triggers jobs on a cron schedule with a seconds field.
// A run still in progress when its next tick fires makes that tick a no-op.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type Scheduler struct {
	cron   *cron.Cron
	logger Logger
}

func New(logger Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// AddJob schedules job; every invocation receives ctx.
func (s *Scheduler) AddJob(ctx context.Context, spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := job(ctx); err != nil {
			s.logger.Errorf("Scheduled job failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Next returns the earliest upcoming trigger, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start()
	s.logger.Infof("Scheduler started, next run at %s", s.Next().Format(time.RFC3339))
	<-ctx.Done()
	s.logger.Infof("Scheduler stopping, waiting for a running job")
	s.Stop()
}

type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Infof("Previous run still in progress, skipping this tick")
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
