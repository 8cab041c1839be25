package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"optionwatch/internal/decision"
)

// DispatchResult summarises one dispatch batch.
type DispatchResult struct {
	Sent   int
	Failed int
	Errors []error
}

// Dispatcher hands decided alerts to the notifier one at a time. It never
// suppresses anything; de-duplication happens before events reach it.
type Dispatcher struct {
	notifier    Notifier
	sendTimeout time.Duration
	logger      zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. A nil notifier logs messages instead.
func NewDispatcher(notifier Notifier, sendTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier:    notifier,
		sendTimeout: sendTimeout,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch renders and sends each event. A failure is logged and counted and
// the remaining events are still sent.
func (d *Dispatcher) Dispatch(ctx context.Context, events []decision.AlertEvent) DispatchResult {
	var result DispatchResult
	for _, ev := range events {
		message := ev.Message
		if message == "" {
			message = ev.Render()
		}
		if err := d.send(ctx, message); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("alert %s: %w", ev.Identifier, err))
			d.logger.Error().Err(err).
				Str("identifier", ev.Identifier).
				Int64("strike", ev.StrikePrice).
				Float64("percent_change", ev.PercentChange).
				Time("observed_at", ev.ObservedAt).
				Msg("failed to dispatch alert")
			continue
		}
		result.Sent++
		d.logger.Info().
			Str("identifier", ev.Identifier).
			Int64("strike", ev.StrikePrice).
			Float64("percent_change", ev.PercentChange).
			Msg("alert dispatched")
	}
	return result
}

// Announce sends free-form informational messages with the same isolation as Dispatch.
func (d *Dispatcher) Announce(ctx context.Context, messages []string) DispatchResult {
	var result DispatchResult
	for _, message := range messages {
		if err := d.send(ctx, message); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			d.logger.Warn().Err(err).Msg("failed to send announcement")
			continue
		}
		result.Sent++
	}
	return result
}

func (d *Dispatcher) send(ctx context.Context, message string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.notifier.Send(sendCtx, message)
}
