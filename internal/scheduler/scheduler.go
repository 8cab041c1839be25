package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per polling cycle.
type TickFunc func(ctx context.Context, at time.Time) error

// Gate reports whether a cycle may run at t.
type Gate func(t time.Time) bool

// Options tune scheduler behaviour.
type Options struct {
	// Interval is measured start to start. A cycle that overruns is followed
	// immediately by the next one; cycles never overlap.
	Interval time.Duration
	// ClosedInterval is the wait used while the gate is closed.
	ClosedInterval time.Duration
	StartupDelay   time.Duration
	Gate           Gate
}

// Scheduler drives the polling loop.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.ClosedInterval <= 0 {
		opts.ClosedInterval = opts.Interval
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Run blocks, invoking tick every interval until ctx is cancelled. A stop
// request is observed between cycles; a running cycle is never interrupted
// by the scheduler itself.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	gateWasOpen := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := s.now()
		if s.opts.Gate != nil && !s.opts.Gate(start) {
			if gateWasOpen {
				s.logger.Info().Time("at", start).Msg("outside polling window, idling")
			}
			gateWasOpen = false
			if err := sleep(ctx, s.opts.ClosedInterval); err != nil {
				return err
			}
			continue
		}
		if !gateWasOpen {
			s.logger.Info().Time("at", start).Msg("polling window open, resuming")
		}
		gateWasOpen = true

		s.logger.Debug().Time("at", start).Msg("executing scheduled tick")
		if err := tick(ctx, start); err != nil {
			s.logger.Error().Err(err).Time("at", start).Msg("tick execution failed")
		}

		elapsed := s.now().Sub(start)
		wait := s.opts.Interval - elapsed
		if wait <= 0 {
			s.logger.Warn().Dur("elapsed", elapsed).Dur("interval", s.opts.Interval).Msg("cycle overran interval")
			continue
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
