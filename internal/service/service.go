package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"optionwatch/internal/alerting"
	"optionwatch/internal/analytics"
	"optionwatch/internal/chain"
	"optionwatch/internal/decision"
	"optionwatch/internal/fetcher"
	"optionwatch/internal/metrics"
	"optionwatch/internal/scheduler"
	"optionwatch/internal/storage"
)

// Decider decides and commits alerts for contract snapshots.
type Decider interface {
	Decide(ctx context.Context, c chain.ContractSnapshot) (*decision.AlertEvent, error)
	Commit(ctx context.Context, alerted []chain.ContractSnapshot)
}

// AlertSink delivers decided alerts and informational messages.
type AlertSink interface {
	Dispatch(ctx context.Context, events []decision.AlertEvent) alerting.DispatchResult
	Announce(ctx context.Context, messages []string) alerting.DispatchResult
}

// Options toggle per-cycle behaviour. With AlertsEnabled false alerts are
// still decided and recorded but only logged.
type Options struct {
	Symbols           []string
	AlertsEnabled     bool
	SignalsEnabled    bool
	NearestExpiryOnly bool
	// WriteTimeout bounds the decide and persist stage, which runs detached
	// from the caller's cancellation so a stop never splits a batch.
	WriteTimeout    time.Duration
	AdvisoryLockKey int64
}

// Service orchestrates fetching, decisions, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.ChainFetcher
	normalizer *chain.Normalizer
	decider    Decider
	store      storage.SnapshotStore
	sink       AlertSink
	locker     storage.AdvisoryLocker
	opts       Options
	logger     zerolog.Logger
}

// New constructs the monitoring service.
func New(opts Options, sched *scheduler.Scheduler, source fetcher.ChainFetcher, decider Decider, store storage.SnapshotStore, sink AlertSink, logger zerolog.Logger) *Service {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		fetcher:    source,
		normalizer: chain.NewNormalizer(logger),
		decider:    decider,
		store:      store,
		sink:       sink,
		locker:     locker,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// CycleReport summarises the processing of one symbol's chain.
type CycleReport struct {
	CycleID         string
	Symbol          string
	ObservedAt      time.Time
	Contracts       int
	Summary         analytics.Summary
	Decided         int
	Persisted       int
	PersistFailures []storage.SnapshotError
	Withheld        int
	Dispatch        alerting.DispatchResult
}

// PersistenceErr reports failed snapshot writes as ErrPartialPersistence.
func (r CycleReport) PersistenceErr() error {
	if len(r.PersistFailures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.PersistFailures))
	for _, f := range r.PersistFailures {
		errs = append(errs, f)
	}
	return fmt.Errorf("%w: %d of %d snapshots: %w", storage.ErrPartialPersistence,
		len(r.PersistFailures), r.Contracts, errors.Join(errs...))
}

// ProcessCycle polls every configured symbol once. A failing symbol is logged
// and the next symbol still runs; a stop request is honoured between symbols.
func (s *Service) ProcessCycle(ctx context.Context, at time.Time) error {
	started := time.Now()
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.RecordCycle(time.Since(started), err)
		return err
	}
	if !proceed {
		metrics.Cycles.WithLabelValues("skipped").Inc()
		s.logger.Debug().Time("at", at).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	cycleID := uuid.NewString()
	var failed []error
	for _, symbol := range s.opts.Symbols {
		if ctx.Err() != nil {
			s.logger.Info().Str("cycle_id", cycleID).Msg("stop requested, ending cycle early")
			break
		}
		report, err := s.ProcessSymbol(ctx, cycleID, symbol)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		if perr := report.PersistenceErr(); perr != nil {
			failed = append(failed, fmt.Errorf("%s: %w", symbol, perr))
		}
	}

	cycleErr := errors.Join(failed...)
	metrics.RecordCycle(time.Since(started), cycleErr)
	return cycleErr
}

// ProcessSymbol fetches one symbol's chain and runs it through the pipeline.
func (s *Service) ProcessSymbol(ctx context.Context, cycleID, symbol string) (CycleReport, error) {
	payload, err := s.fetcher.FetchChain(ctx, symbol)
	metrics.RecordFetch(symbol, err)
	if err != nil {
		s.logger.Error().Err(err).Str("cycle_id", cycleID).Str("symbol", symbol).Msg("failed to fetch option chain")
		return CycleReport{CycleID: cycleID, Symbol: symbol}, err
	}

	observedAt := time.Now()
	report, err := s.ProcessPayload(ctx, cycleID, symbol, payload, observedAt)
	if err != nil {
		s.logger.Error().Err(err).
			Str("cycle_id", cycleID).
			Str("symbol", symbol).
			Time("observed_at", observedAt).
			Msg("failed to process option chain")
	}
	return report, err
}

// ProcessPayload normalises payload and decides, persists, and dispatches its
// alerts. An alert is dispatched only after its snapshot is durably stored; a
// contract whose write fails is withheld and decided afresh next poll.
func (s *Service) ProcessPayload(ctx context.Context, cycleID, symbol string, payload json.RawMessage, observedAt time.Time) (CycleReport, error) {
	report := CycleReport{CycleID: cycleID, Symbol: symbol, ObservedAt: observedAt}
	log := s.logger.With().Str("cycle_id", cycleID).Str("symbol", symbol).Time("observed_at", observedAt).Logger()

	snap, err := s.normalizer.Normalize(symbol, payload, observedAt)
	if err != nil {
		return report, err
	}
	if s.opts.NearestExpiryOnly {
		if expiry, ok := chain.NearestExpiry(snap.Contracts); ok {
			snap.Contracts = chain.FilterExpiry(snap.Contracts, expiry)
		}
	}
	report.Contracts = len(snap.Contracts)

	report.Summary = analytics.Summarize(snap)
	s.observeSummary(ctx, log, report.Summary)

	// Decisions and writes share one detached deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()

	rows := make([]storage.SnapshotRow, 0, len(snap.Contracts))
	events := make(map[string]decision.AlertEvent)
	for _, c := range snap.Contracts {
		row := storage.SnapshotRow{Snapshot: c}
		if s.decider != nil {
			event, err := s.decider.Decide(writeCtx, c)
			if err != nil {
				log.Warn().Err(err).Str("identifier", c.Identifier).Msg("alert decision failed, skipping contract")
			} else if event != nil {
				row.Alerted = true
				events[rowKey(c)] = *event
				metrics.AlertsDecided.WithLabelValues(symbol, string(c.OptionType)).Inc()
			}
		}
		rows = append(rows, row)
	}
	report.Decided = len(events)

	persisted, failures := s.store.AppendSnapshots(writeCtx, rows)
	report.Persisted = len(persisted)
	report.PersistFailures = failures
	metrics.SnapshotsPersisted.WithLabelValues(symbol).Add(float64(len(persisted)))
	metrics.SnapshotFailures.WithLabelValues(symbol).Add(float64(len(failures)))
	for _, f := range failures {
		log.Error().Err(f.Err).
			Str("identifier", f.Row.Snapshot.Identifier).
			Bool("alerted", f.Row.Alerted).
			Msg("failed to persist snapshot")
		if f.Row.Alerted {
			report.Withheld++
		}
	}

	var committed []chain.ContractSnapshot
	toSend := make([]decision.AlertEvent, 0, len(events))
	for _, row := range persisted {
		if !row.Alerted {
			continue
		}
		event, ok := events[rowKey(row.Snapshot)]
		if !ok {
			continue
		}
		committed = append(committed, row.Snapshot)
		toSend = append(toSend, event)
	}
	if s.decider != nil && len(committed) > 0 {
		s.decider.Commit(writeCtx, committed)
	}

	switch {
	case len(toSend) == 0:
	case !s.opts.AlertsEnabled || s.sink == nil:
		for _, event := range toSend {
			log.Info().
				Str("identifier", event.Identifier).
				Float64("percent_change", event.PercentChange).
				Str("message", event.Message).
				Msg("alert sending disabled, logged only")
		}
	default:
		// Persisted alerts are delivered even when a stop arrives mid-batch;
		// each send keeps its own timeout.
		report.Dispatch = s.sink.Dispatch(context.WithoutCancel(ctx), toSend)
		metrics.AlertsDispatched.WithLabelValues("sent").Add(float64(report.Dispatch.Sent))
		metrics.AlertsDispatched.WithLabelValues("failed").Add(float64(report.Dispatch.Failed))
	}

	log.Info().
		Int("contracts", report.Contracts).
		Int("decided", report.Decided).
		Int("persisted", report.Persisted).
		Int("persist_failures", len(report.PersistFailures)).
		Int("withheld", report.Withheld).
		Int("dispatched", report.Dispatch.Sent).
		Msg("chain processed")

	return report, nil
}

func (s *Service) observeSummary(ctx context.Context, log zerolog.Logger, sum analytics.Summary) {
	metrics.PutCallRatio.WithLabelValues(sum.Symbol).Set(sum.PCR)
	evt := log.Info().
		Int("contracts", sum.Contracts).
		Int("in_the_money", sum.InTheMoney).
		Float64("pcr", sum.PCR)
	if sum.HasMaxPain {
		metrics.MaxPainStrike.WithLabelValues(sum.Symbol).Set(float64(sum.MaxPainStrike))
		evt = evt.Int64("max_pain_strike", sum.MaxPainStrike)
	}
	evt.Int("directional_signals", len(sum.Signals)).Msg("chain summary")

	if len(sum.Signals) == 0 {
		return
	}
	messages := make([]string, 0, len(sum.Signals))
	for _, sig := range sum.Signals {
		metrics.DirectionalSignals.WithLabelValues(sum.Symbol, string(sig.Direction)).Inc()
		msg := sig.String()
		log.Info().Str("identifier", sig.Identifier).Str("direction", string(sig.Direction)).Msg(msg)
		messages = append(messages, msg)
	}
	if s.opts.SignalsEnabled && s.sink != nil {
		s.sink.Announce(ctx, messages)
	}
}

func rowKey(c chain.ContractSnapshot) string {
	return c.Identifier + "|" + c.ObservedAt.UTC().Format(time.RFC3339Nano)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
