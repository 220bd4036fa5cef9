package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/fyp-go-api/internal/lock"
)

// DeadlineScheduler runs the deadline sweep on a cron schedule. Only the
// replica holding the sweep lease does work on a given tick.
type DeadlineScheduler struct {
	processor DeadlineProcessor
	lease     lock.Locker
	schedule  string
	timeout   time.Duration
	logger    zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewDeadlineScheduler wires the sweep to a cron spec such as "@every 5m".
func NewDeadlineScheduler(processor DeadlineProcessor, lease lock.Locker, schedule string, timeout time.Duration, logger zerolog.Logger) *DeadlineScheduler {
	if lease == nil {
		lease = lock.NewKeyedMutex()
	}
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	return &DeadlineScheduler{
		processor: processor,
		lease:     lease,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger.With().Str("component", "deadline_scheduler").Logger(),
	}
}

// Start registers the sweep and begins ticking.
func (s *DeadlineScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	adapter := cronLogger{logger: s.logger}
	c := cron.New(cron.WithLogger(adapter), cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("deadline sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule deadline sweep %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", s.schedule).Dur("timeout", s.timeout).Msg("deadline scheduler started")
	return nil
}

// Stop halts the schedule and waits for a running sweep up to ctx.
func (s *DeadlineScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("deadline sweep still running at shutdown")
	}
}

// RunOnce runs a single sweep if this replica wins the lease. ran is false
// when another holder already has it.
func (s *DeadlineScheduler) RunOnce(ctx context.Context) (report SweepReport, ran bool, err error) {
	release, ok, err := s.lease.TryAcquire(ctx, lock.DeadlineSweepKey)
	if err != nil {
		return SweepReport{}, false, err
	}
	if !ok {
		s.logger.Debug().Msg("deadline sweep lease held elsewhere")
		return SweepReport{}, false, nil
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err = s.processor.RunDeadlineSweep(ctx)
	return report, true, err
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
