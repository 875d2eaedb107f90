package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/app"
	"github.com/Thetimii/dashboard-sub001/internal/config"
	"github.com/Thetimii/dashboard-sub001/internal/kafka"
	"github.com/Thetimii/dashboard-sub001/internal/logger"
	"github.com/Thetimii/dashboard-sub001/internal/metrics"
	"github.com/Thetimii/dashboard-sub001/internal/worker"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Consume lifecycle envelopes from Kafka and dispatch them",
	RunE:  runDispatch,
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, config.EnvSecrets{}, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	kc := kafka.ConfigFrom(cfg.Kafka)
	if kc.GroupID == "" {
		kc.GroupID = "onboard-dispatch"
	}
	consumer := kafka.NewConsumer(kc)
	defer func() { _ = consumer.Close() }()

	w := worker.NewLifecycleWorker(consumer, a.Router, log)
	if cfg.Worker.Count > 0 {
		w.Workers = cfg.Worker.Count
	}

	log.Info("dispatch worker started",
		zap.String("topic", kc.Topic),
		zap.String("group", kc.GroupID),
		zap.Int("workers", w.Workers),
	)

	return w.Run(ctx)
}
