package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/bot"
	"joinguard-hq/warden/pkg/broadcast"
	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/enforcement"
	"joinguard-hq/warden/pkg/membership"
	"joinguard-hq/warden/pkg/platform/telegram"
	"joinguard-hq/warden/pkg/policy"
	"joinguard-hq/warden/pkg/ratelimit"
	"joinguard-hq/warden/pkg/server"
	"joinguard-hq/warden/pkg/store"
	"joinguard-hq/warden/pkg/telemetry/health"
	"joinguard-hq/warden/pkg/telemetry/logging"
	"joinguard-hq/warden/pkg/telemetry/metrics"
	"joinguard-hq/warden/pkg/warnings"
)

// app owns every long-lived component of the running service.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	client     *telegram.Client
	backend    store.Backend
	redis      redis.UniversalClient
	mutes      warnings.Store
	cooldown   ratelimit.Cooldown
	recorder   *audit.Recorder
	collector  *metrics.Collector
	engine     *enforcement.Engine
	sweeper    *enforcement.Sweeper
	bot        *bot.Bot
	dispatcher *bot.Dispatcher
	server     *server.Server
	watcher    *config.Watcher

	closers []func() error
}

// newApp builds the service. ctx bounds startup connections and is the
// parent of background broadcast jobs.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, cfgPath string) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	a.client, err = telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Debug:       cfg.Telegram.Debug,
		PollTimeout: cfg.Telegram.PollTimeout,
		MaxRetries:  cfg.Telegram.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to telegram", "username", a.client.Username())

	storeCfg := store.ConfigFrom(cfg.Storage)
	storeCfg.Cache.Observer = a.collector
	a.backend, err = store.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}
	a.closers = append(a.closers, a.backend.Close)

	if err := a.openState(ctx); err != nil {
		return nil, err
	}

	sink, err := audit.Open(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	a.recorder = audit.NewRecorder(sink, cfg.Audit.BufferSize)
	a.closers = append(a.closers, a.recorder.Close)

	dir := directory.New(a.client, directory.Config{Observer: a.collector})
	a.engine, err = enforcement.New(enforcement.ConfigFrom(cfg.Enforcement), enforcement.Deps{
		Client:    a.client,
		Policies:  a.backend,
		Directory: dir,
		Prober:    membership.NewProber(a.client, dir),
		Warnings:  warnings.NewManager(a.mutes, a.client),
		Cooldown:  a.cooldown,
		Metrics:   a.collector,
		Audit:     a.recorder,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.engine.Close)

	sweeperCfg := enforcement.SweeperConfig{Schedule: cfg.Enforcement.SweepSchedule}
	if pruner, ok := sink.(audit.Pruner); ok {
		sweeperCfg.AuditPruner = pruner
		sweeperCfg.AuditRetention = cfg.Audit.Retention
		sweeperCfg.PruneSchedule = cfg.Audit.PruneSchedule
	}
	a.sweeper = enforcement.NewSweeper(a.engine, sweeperCfg)

	a.bot = bot.New(bot.Deps{
		Client:      a.client,
		Engine:      a.engine,
		Policies:    policy.NewService(a.backend, a.client, dir, a.recorder),
		Store:       a.backend,
		Sessions:    broadcast.NewSessions(cfg.Broadcast.SessionTimeout),
		Broadcasts:  broadcast.NewCoordinator(a.client, a.backend, broadcast.ConfigFrom(cfg.Broadcast), a.collector, a.recorder),
		IsOperator:  isOperator,
		BaseContext: ctx,
	})
	a.dispatcher = bot.NewDispatcher(a.bot, bot.DispatcherConfigFrom(cfg.Dispatch), a.collector)

	if !cfg.Server.Disabled {
		a.server = server.New(cfg.Server, server.Options{
			Checker:     a.healthChecker(),
			Metrics:     a.metricsEndpoint(),
			MetricsPath: cfg.Telemetry.Metrics.Path,
			Version:     versionInfo(),
		})
	}

	if cfgPath != "" {
		a.watcher, err = config.NewWatcher(cfgPath, 0, a.reload)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.watcher.Stop)
	}

	return a, nil
}

// openState connects the mute state and cool-down backend.
func (a *app) openState(ctx context.Context) error {
	cooldownCfg := ratelimit.Config{Window: a.cfg.Enforcement.WarningCooldown}

	if a.cfg.State.Backend != "redis" {
		a.mutes = warnings.NewMemoryStore()
		a.cooldown = ratelimit.NewMemoryCooldown(cooldownCfg)
		a.closers = append(a.closers, a.mutes.Close, a.cooldown.Close)
		return nil
	}

	rc := a.cfg.State.Redis
	a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    rc.Addrs,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	})
	a.closers = append(a.closers, a.redis.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis %v: %w", rc.Addrs, err)
	}

	a.mutes = warnings.NewRedisStore(a.redis, warnings.RedisConfig{Prefix: rc.Prefix, Retention: rc.Retention})
	a.cooldown = ratelimit.NewRedisCooldown(a.redis, rc.Prefix, cooldownCfg)
	slog.Info("using redis state backend", "addrs", rc.Addrs)
	return nil
}

func (a *app) healthChecker() *health.Checker {
	checker := health.New(a.cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("store", health.PingCheck(a.backend))
	checker.RegisterCheck("telegram", health.BotCheck(a.client))
	if a.redis != nil {
		checker.RegisterCheck("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	return checker
}

func (a *app) metricsEndpoint() *metrics.Collector {
	if a.cfg.Telemetry.Metrics.Disabled {
		return nil
	}
	return a.collector
}

// reload applies the settings that can change without a restart.
func (a *app) reload(cfg *config.Config) {
	a.engine.UpdateTunables(enforcement.ConfigFrom(cfg.Enforcement))
	if err := a.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		slog.Warn("ignoring invalid log level", "level", cfg.Telemetry.Logging.Level, "error", err)
	}
}

// isOperator reads the live configuration so operator changes apply on
// reload.
func isOperator(userID int64) bool {
	cfg := config.GetConfig()
	return cfg != nil && cfg.Telegram.IsOperator(userID)
}

// Run serves until ctx is cancelled or a component fails.
func (a *app) Run(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return err
	}
	defer a.sweeper.Stop()

	errChan := make(chan error, 3)
	if a.server != nil {
		go func() { errChan <- a.server.Start(ctx) }()
	}
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Watch(ctx); err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { errChan <- a.dispatcher.Run(runCtx, a.client) }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
		if runErr == nil {
			runErr = errors.New("component stopped unexpectedly")
		}
	}
	cancel()

	slog.Info("waiting for running broadcasts to stop")
	a.bot.Wait()
	if a.server != nil {
		shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer stop()
		if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
