package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/app"
	"github.com/Thetimii/dashboard-sub001/internal/config"
	httpSrv "github.com/Thetimii/dashboard-sub001/internal/http"
	"github.com/Thetimii/dashboard-sub001/internal/kafka"
	"github.com/Thetimii/dashboard-sub001/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP ingest server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		a, err := app.New(cmd.Context(), cfg, config.EnvSecrets{}, log)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		deps := httpSrv.Deps{
			Router:    a.Router,
			Providers: a.Dispatcher,
			Redis:     a.Redis,
			Logger:    log,
		}
		if a.Reporter != nil {
			deps.Conversion = a.Reporter
		}
		if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
			producer := kafka.NewProducer(kafka.ConfigFrom(cfg.Kafka))
			defer func() { _ = producer.Close() }()
			deps.Publisher = producer
		}

		server := httpSrv.NewServer(cfg, deps)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
