package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"optionwatch/internal/alerting"
	"optionwatch/internal/decision"
	"optionwatch/internal/service"
	"optionwatch/internal/storage"
)

// Replay runs a captured option-chain payload through the full pipeline as if
// it had been fetched at opts.At.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) (service.CycleReport, error) {
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return service.CycleReport{}, errors.New("--symbol must be provided")
	}

	payload, err := readPayload(opts.File)
	if err != nil {
		return service.CycleReport{}, err
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}

	var (
		store storage.SnapshotStore
		cache decision.FloorCache
		sink  service.AlertSink
	)
	if opts.DryRun {
		// Nothing a dry run decides may reach shared state.
		a.Logger.Warn().Msg("replay dry-run: snapshots, floors, and alerts stay local")
		store = storage.NewMemoryStore()
		cache = decision.NewMemoryFloorCache()
		sink = alerting.NewDispatcher(alerting.NewLogNotifier(a.Logger), a.Config.Alerting.SendTimeout, a.Logger)
	} else {
		s, closeStore, err := a.openSnapshotStore(ctx)
		if err != nil {
			return service.CycleReport{}, err
		}
		defer closeStore()
		store = s

		c, closeCache := a.newFloorCache(ctx)
		defer closeCache()
		cache = c
		sink = a.newDispatcher()
	}

	decider, err := a.newDecider(store, cache)
	if err != nil {
		return service.CycleReport{}, err
	}

	svc := service.New(a.serviceOptions(), nil, nil, decider, store, sink, a.Logger)
	report, err := svc.ProcessPayload(ctx, uuid.NewString(), symbol, payload, at)
	if err != nil {
		return report, err
	}

	a.Logger.Info().
		Str("symbol", symbol).
		Time("observed_at", at).
		Int("contracts", report.Contracts).
		Int("alerts", report.Dispatch.Sent).
		Msg("replay complete")
	return report, report.PersistenceErr()
}

func readPayload(path string) (json.RawMessage, error) {
	var r io.Reader
	if path == "" || path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return json.RawMessage(data), nil
}
