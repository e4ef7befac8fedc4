package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivanoskov/payout_bot/internal/app"
	"github.com/ivanoskov/payout_bot/internal/lifecycle"
	"github.com/ivanoskov/payout_bot/internal/server"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:          "payout-bot",
		Short:        "Telegram bot for sending, withdrawing and batch payouts",
		Version:      Version,
		SilenceUsage: true,
	}

	run := runCmd()
	rootCmd.AddCommand(run)
	rootCmd.AddCommand(serveCmd())
	// без подкоманды бот работает в режиме long polling
	rootCmd.RunE = run.RunE
	rootCmd.Flags().AddFlagSet(run.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot with long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return runPolling(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Serve /metrics and /healthz on this address")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot behind a webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			webhookURL, _ := cmd.Flags().GetString("set-webhook")
			return runWebhook(cmd.Context(), webhookURL)
		},
	}
	cmd.Flags().String("set-webhook", "", "Register this public base URL with Telegram before serving")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runPolling(parent context.Context, metricsAddr string) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := app.New(ctx, app.Options{Notifications: true})
	if err != nil {
		return err
	}
	defer a.Close()

	lock, err := lifecycle.Acquire(a.Config.PIDFile)
	if err != nil {
		if errors.Is(err, lifecycle.ErrAlreadyRunning) {
			a.Logger.Error("refusing to start", zap.Error(err))
		}
		return err
	}
	defer lock.Release()

	if err := a.Bot.RegisterCommands(); err != nil {
		a.Logger.Warn("command menu not updated", zap.Error(err))
	}

	if metricsAddr != "" {
		// без секрета маршрут webhook всегда отвечает 404
		srv := server.New(metricsAddr, "", a.Bot, a.Registry, a.Logger)
		go func() {
			if err := srv.Start(); err != nil {
				a.Logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer shutdown(srv, a.Logger)
	}

	a.Logger.Info("bot started", zap.String("version", Version), zap.String("mode", "polling"))
	return a.Bot.Start(ctx)
}

func runWebhook(parent context.Context, webhookURL string) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := app.New(ctx, app.Options{Notifications: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required for serve")
	}
	if webhookURL != "" {
		if err := a.Bot.SetWebhook(webhookURL + "/webhook/" + a.Config.WebhookSecret); err != nil {
			return err
		}
	}
	if err := a.Bot.RegisterCommands(); err != nil {
		a.Logger.Warn("command menu not updated", zap.Error(err))
	}

	srv := server.New(a.Config.WebhookAddr, a.Config.WebhookSecret, a.Bot, a.Registry, a.Logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	a.Logger.Info("bot started", zap.String("version", Version), zap.String("mode", "webhook"))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdown(srv, a.Logger)
	return nil
}

func shutdown(srv *server.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
}
