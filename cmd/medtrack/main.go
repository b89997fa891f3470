package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medtrack/medtrack/internal/api"
	"github.com/medtrack/medtrack/internal/backend"
	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/ledger"
	"github.com/medtrack/medtrack/internal/lifecycle"
	"github.com/medtrack/medtrack/internal/metrics"
	"github.com/medtrack/medtrack/internal/notify"
	"github.com/medtrack/medtrack/internal/registrar"
	"github.com/medtrack/medtrack/internal/scheduler"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("medtrack version %s\n", version)
			return
		}
	}

	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	client := backend.NewClient(cfg.Backend, logger)
	platform := notify.NewLocalPlatform(cfg.Notifications.PushCapable, nil, logger)
	defer platform.Stop()

	sched := scheduler.New(platform,
		time.Duration(cfg.Notifications.FallbackDelaySeconds)*time.Second, m, logger)
	led := ledger.NewService(client, m, logger)

	// One device token per process, provisioned on first use. A real
	// mobile shell swaps this for its FCM provider.
	deviceToken := "device-" + uuid.NewString()
	reg := registrar.New(registrar.TokenProviderFunc(func(ctx context.Context) (string, error) {
		return deviceToken, nil
	}), client, platform, logger)

	coordinator := lifecycle.New(client, led, sched, reg, m, logger)

	var resync *lifecycle.ResyncRunner
	if cfg.Resync.Enabled {
		resync = lifecycle.NewResyncRunner(coordinator,
			time.Duration(cfg.Resync.IntervalMinutes)*time.Minute, logger)
		if err := resync.Start(); err != nil {
			logger.Error("Failed to start resync runner", zap.Error(err))
		} else {
			logger.Info("Resync runner started",
				zap.Int("interval_minutes", cfg.Resync.IntervalMinutes))
		}
	}

	server := api.New(cfg, coordinator, registry, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("push_capable", cfg.Notifications.PushCapable),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if resync != nil {
		resync.Stop()
	}

	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
}
