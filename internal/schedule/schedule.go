// Package schedule runs periodic jobs, such as recurring crawls, on cron
// expressions.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner whose jobs recover from panics and never
// overlap with their own previous run.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	// ctx is handed to every job run and cancelled by Run on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a stopped Scheduler. Times are evaluated in loc, or UTC when nil.
func New(logger *zap.Logger, loc *time.Location) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.Named("schedule")
	cl := cronLogger{sugar: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under a standard five-field spec or a descriptor such as
// "@daily".
func (s *Scheduler) Add(spec, name string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Info("scheduled job started", zap.String("job", name))
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled job failed",
				zap.String("job", name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("scheduled job finished",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
		)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return id, nil
}

// Next reports when the entry runs next; zero before Start.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Run starts the scheduler and blocks until ctx is done, then cancels
// running jobs and waits for them to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron's key/value logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
