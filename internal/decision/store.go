package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"optionwatch/internal/analytics"
	"optionwatch/internal/chain"
)

// DefaultThreshold is the minimum |percent change| that can alert.
const DefaultThreshold = 100.0

// FloorSource answers the highest |percent change| already alerted for an
// identifier between from (inclusive) and to (exclusive).
type FloorSource interface {
	MaxAbsPercentChange(ctx context.Context, identifier string, from, to time.Time) (float64, bool, error)
}

// AlertEvent is a decided, dispatch-ready alert.
type AlertEvent struct {
	Identifier      string
	Symbol          string
	OptionType      chain.OptionType
	StrikePrice     int64
	PercentChange   float64
	UnderlyingValue float64
	ObservedAt      time.Time
	Floor           *float64
	Message         string
}

// Render formats the event for a human reader.
func (e AlertEvent) Render() string {
	return fmt.Sprintf(
		"Alert: %s %s %s option at strike price %d has percent change of %s%% and is in the money (Underlying Value: %s).",
		e.ObservedAt.Format("01/02/2006, 15:04:05"),
		e.Identifier,
		e.OptionType,
		e.StrikePrice,
		decimal.NewFromFloat(e.PercentChange).StringFixed(2),
		decimal.NewFromFloat(e.UnderlyingValue).StringFixed(2),
	)
}

// Options tune the decision store.
type Options struct {
	Threshold float64
	Location  *time.Location
}

// Store decides whether an observation is alert-worthy. The per-day floor is
// always derived from the snapshot log; the optional cache only saves lookups.
type Store struct {
	source    FloorSource
	cache     FloorCache
	threshold float64
	loc       *time.Location
	logger    zerolog.Logger
}

// New constructs a Store. cache may be nil.
func New(opts Options, source FloorSource, cache FloorCache, logger zerolog.Logger) *Store {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		source:    source,
		cache:     cache,
		threshold: opts.Threshold,
		loc:       loc,
		logger:    logger.With().Str("component", "decision").Logger(),
	}
}

// Threshold returns the configured alert threshold.
func (s *Store) Threshold() float64 {
	return s.threshold
}

// TradingDay returns the local calendar day containing t as a [start, end) range.
func (s *Store) TradingDay(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// DayKey names the trading day of t, e.g. 2026-10-16.
func (s *Store) DayKey(t time.Time) string {
	return t.In(s.loc).Format(time.DateOnly)
}

// Decide returns an AlertEvent when c is in the money, clears the threshold and
// is at least as extreme as anything already alerted for it today. A nil event
// with a nil error means no alert.
func (s *Store) Decide(ctx context.Context, c chain.ContractSnapshot) (*AlertEvent, error) {
	if !analytics.InTheMoney(c) {
		return nil, nil
	}

	move := math.Abs(c.PercentChange)
	if move < s.threshold {
		return nil, nil
	}

	floor, found, err := s.floor(ctx, c.Identifier, c.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("lookup alert floor for %s: %w", c.Identifier, err)
	}
	if found && move < floor {
		s.logger.Debug().
			Str("identifier", c.Identifier).
			Float64("percent_change", c.PercentChange).
			Float64("floor", floor).
			Msg("move below today's floor")
		return nil, nil
	}

	event := &AlertEvent{
		Identifier:      c.Identifier,
		Symbol:          c.IndexName,
		OptionType:      c.OptionType,
		StrikePrice:     c.StrikePrice,
		PercentChange:   c.PercentChange,
		UnderlyingValue: c.UnderlyingValue,
		ObservedAt:      c.ObservedAt,
	}
	if found {
		prior := floor
		event.Floor = &prior
	}
	event.Message = event.Render()
	return event, nil
}

// Commit records that the alerted snapshots were persisted so the cache can
// raise their floors. Cache failures are logged; the log stays authoritative.
func (s *Store) Commit(ctx context.Context, alerted []chain.ContractSnapshot) {
	if s.cache == nil {
		return
	}
	for _, c := range alerted {
		if err := s.cache.Raise(ctx, s.DayKey(c.ObservedAt), c.Identifier, math.Abs(c.PercentChange)); err != nil {
			s.logger.Warn().Err(err).Str("identifier", c.Identifier).Msg("failed to raise cached floor")
		}
	}
}

func (s *Store) floor(ctx context.Context, identifier string, observedAt time.Time) (float64, bool, error) {
	day := s.DayKey(observedAt)
	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, day, identifier)
		if err != nil {
			s.logger.Warn().Err(err).Str("identifier", identifier).Msg("floor cache lookup failed")
		} else if ok {
			return value, true, nil
		}
	}

	if s.source == nil {
		return 0, false, nil
	}

	from, to := s.TradingDay(observedAt)
	value, ok, err := s.source.MaxAbsPercentChange(ctx, identifier, from, to)
	if err != nil {
		return 0, false, err
	}
	if ok && s.cache != nil {
		if err := s.cache.Raise(ctx, day, identifier, value); err != nil {
			s.logger.Warn().Err(err).Str("identifier", identifier).Msg("failed to warm floor cache")
		}
	}
	return value, ok, nil
}
