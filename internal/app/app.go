package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"optionwatch/internal/alerting"
	"optionwatch/internal/config"
	"optionwatch/internal/decision"
	"optionwatch/internal/fetcher"
	"optionwatch/internal/metrics"
	"optionwatch/internal/scheduler"
	"optionwatch/internal/service"
	"optionwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// floorCache, when set, replaces the configured cache backend.
	floorCache decision.FloorCache
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() *fetcher.NSE {
	cfg := a.Config.NSE
	return fetcher.NewNSE(fetcher.NSEOptions{
		BaseURL:         cfg.BaseURL,
		UserAgent:       cfg.UserAgent,
		Timeout:         cfg.RequestTimeout,
		RatePerSecond:   cfg.RatePerSecond,
		Burst:           cfg.Burst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, a.Logger)
}

// newNotifier returns the configured channels, or nil when none is configured.
func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var channels alerting.Fanout
	if cfg.Slack.WebhookURL != "" {
		channels = append(channels, alerting.NewSlackNotifier(cfg.Slack.WebhookURL, timeout, a.Logger))
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, timeout, a.Logger))
	}

	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	default:
		return channels
	}
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no alert channel configured; alerts will be logged only")
	}
	return alerting.NewDispatcher(notifier, a.Config.Alerting.SendTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// openSnapshotStore falls back to an in-memory log when no database is configured.
func (a *App) openSnapshotStore(ctx context.Context) (storage.SnapshotStore, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshots kept in memory and lost on exit")
		return storage.NewMemoryStore(), func() {}, nil
	}
	return store, closeStore, nil
}

func (a *App) newFloorCache(ctx context.Context) (decision.FloorCache, func()) {
	if a.floorCache != nil {
		return a.floorCache, func() {}
	}
	cfg := a.Config.Cache
	switch strings.ToLower(cfg.Backend) {
	case "none":
		return nil, func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			a.Logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; using in-memory floor cache")
			_ = client.Close()
			return decision.NewMemoryFloorCache(), func() {}
		}
		return decision.NewRedisFloorCache(client, a.Config.App.Name, cfg.TTL), func() { _ = client.Close() }
	default:
		return decision.NewMemoryFloorCache(), func() {}
	}
}

func (a *App) newDecider(source decision.FloorSource, cache decision.FloorCache) (*decision.Store, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return decision.New(decision.Options{
		Threshold: a.Config.Alerting.ThresholdPct,
		Location:  loc,
	}, source, cache, a.Logger), nil
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		Symbols:           a.Config.Symbols(),
		AlertsEnabled:     a.Config.Alerting.Enabled,
		SignalsEnabled:    a.Config.Alerting.SignalsEnabled,
		NearestExpiryOnly: a.Config.Market.NearestExpiryOnly,
		WriteTimeout:      a.Config.Database.WriteTimeout,
		AdvisoryLockKey:   a.Config.Scheduler.AdvisoryLockKey,
	}
}

func (a *App) serveMetrics() func() {
	if !a.Config.Metrics.Enabled {
		return func() {}
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		a.Logger.Error().Err(err).Msg("failed to register metrics")
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	srv := &http.Server{
		Addr:              a.Config.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openSnapshotStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cache, closeCache := a.newFloorCache(ctx)
	defer closeCache()

	decider, err := a.newDecider(store, cache)
	if err != nil {
		return err
	}

	stopMetrics := a.serveMetrics()
	defer stopMetrics()

	opts := scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		ClosedInterval: a.Config.Scheduler.ClosedInterval,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
	}
	if !a.Config.Market.BypassHours {
		hours, err := a.Config.MarketHours()
		if err != nil {
			return err
		}
		opts.Gate = hours.Gate()
	}
	sched := scheduler.New(opts, a.Logger)

	svc := service.New(a.serviceOptions(), sched, a.newFetcher(), decider, store, a.newDispatcher(), a.Logger)

	a.Logger.Info().
		Strs("symbols", a.Config.Symbols()).
		Float64("threshold_pct", a.Config.Alerting.ThresholdPct).
		Bool("bypass_hours", a.Config.Market.BypassHours).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting a contract's history.
type ExportOptions struct {
	Identifier string
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ReplayOptions configure replaying a captured payload.
type ReplayOptions struct {
	Symbol string
	File   string
	At     time.Time
	DryRun bool
}

// SimulateOptions describe a synthetic alert.
type SimulateOptions struct {
	Symbol          string
	OptionType      string
	StrikePrice     int64
	PercentChange   float64
	UnderlyingValue float64
}
