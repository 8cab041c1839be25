package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"optionwatch/internal/alerting"
	"optionwatch/internal/chain"
	"optionwatch/internal/decision"
)

// SimulateAlert pushes one synthetic alert through the configured channels.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	event, err := simulatedEvent(opts, time.Now())
	if err != nil {
		return err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	event.ObservedAt = event.ObservedAt.In(loc)
	event.Message = event.Render()

	dispatcher := alerting.NewDispatcher(notifier, a.Config.Alerting.SendTimeout, a.Logger)
	result := dispatcher.Dispatch(ctx, []decision.AlertEvent{event})
	if result.Failed > 0 {
		return errors.Join(result.Errors...)
	}
	a.Logger.Info().Str("identifier", event.Identifier).Msg("simulated alert sent")
	return nil
}

func simulatedEvent(opts SimulateOptions, now time.Time) (decision.AlertEvent, error) {
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		symbol = "NIFTY"
	}

	var kind chain.OptionType
	switch strings.ToUpper(opts.OptionType) {
	case "PUT", "PE":
		kind = chain.Put
	case "CALL", "CE":
		kind = chain.Call
	default:
		return decision.AlertEvent{}, fmt.Errorf("unknown option type %q", opts.OptionType)
	}
	if opts.StrikePrice <= 0 {
		return decision.AlertEvent{}, errors.New("strike must be greater than zero")
	}

	suffix := "PE"
	if kind == chain.Call {
		suffix = "CE"
	}
	return decision.AlertEvent{
		Identifier:      fmt.Sprintf("SIMULATED-%s-%s%d", symbol, suffix, opts.StrikePrice),
		Symbol:          symbol,
		OptionType:      kind,
		StrikePrice:     opts.StrikePrice,
		PercentChange:   opts.PercentChange,
		UnderlyingValue: opts.UnderlyingValue,
		ObservedAt:      now,
	}, nil
}
