// Package app собирает зависимости бота из конфигурации. Его используют
// и долгоживущий процесс, и serverless-функция.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/api"
	"github.com/ivanoskov/payout_bot/internal/bot"
	"github.com/ivanoskov/payout_bot/internal/cache"
	"github.com/ivanoskov/payout_bot/internal/config"
	"github.com/ivanoskov/payout_bot/internal/logger"
	"github.com/ivanoskov/payout_bot/internal/metrics"
	"github.com/ivanoskov/payout_bot/internal/notify"
	"github.com/ivanoskov/payout_bot/internal/repository"
	"github.com/ivanoskov/payout_bot/internal/service"
)

type Options struct {
	// Notifications включает подписки Pusher; нужен долгоживущий процесс
	Notifications bool
}

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Engine   *service.Engine
	Bot      *bot.Bot

	hub     *notify.Hub
	closers []func() error
}

// New читает конфигурацию и создает все компоненты
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry)

	store, err := a.sessionStore(ctx)
	if err != nil {
		return err
	}
	sessions := repository.NewSessions(store, cfg.SessionSecret, cfg.SessionTTL)

	balances, err := cache.NewBalanceCache(ctx, cfg.BalanceCacheTTL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, balances.Close)

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, a.Logger, m)

	var notifier service.Notifier
	if opts.Notifications && cfg.PusherKey != "" {
		a.hub = notify.NewHub(notify.Options{
			Key:     cfg.PusherKey,
			Cluster: cfg.PusherCluster,
			Auth:    client,
			// бот создается ниже; уведомления приходят только после входа пользователя
			Send:   func(chatID int64, text string) { a.Bot.Notify(chatID, text) },
			Logger: a.Logger,
		})
		notifier = a.hub
	} else {
		a.Logger.Info("deposit notifications disabled")
	}

	a.Engine = service.NewEngine(service.Options{
		API:           client,
		Sessions:      sessions,
		Balances:      balances,
		Notifier:      notifier,
		Logger:        a.Logger,
		Metrics:       m,
		BatchCurrency: cfg.BatchCurrency,
	})

	a.Bot, err = bot.NewBot(cfg.TelegramToken, a.Engine, a.Logger, m)
	return err
}

func (a *App) sessionStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config
	a.Logger.Info("session backend", zap.String("backend", cfg.SessionBackend))

	switch cfg.SessionBackend {
	case config.BackendRedis:
		store, err := repository.NewRedisStore(ctx, repository.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendSupabase:
		store, err := repository.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
}

// Close останавливает подписки и освобождает ресурсы
func (a *App) Close() error {
	if a.hub != nil {
		a.hub.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
