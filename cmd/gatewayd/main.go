package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/gogateway"
	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/gogateway/config"
	"github.com/evdnx/gogateway/ws"
	"github.com/evdnx/golog"
	metrics "github.com/evdnx/gotrademetrics"
	"github.com/joho/godotenv"
)

const mainComponent = "gatewayd"

func main() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload configuration on file change")
	flag.Parse()

	logger := common.DefaultLogger()

	manager, err := config.NewManager(*configPath, *watch)
	if err != nil {
		logger.Error("failed to load configuration",
			golog.String("component", mainComponent),
			golog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg := manager.GetConfig()

	// Rebuild the shared logger before any component captures it.
	if err := common.ConfigureLogLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid log level, keeping info",
			golog.String("component", mainComponent),
			golog.String("error", err.Error()))
	}
	logger = common.DefaultLogger()

	if projectID := os.Getenv("GOGATEWAY_GCP_PROJECT"); projectID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := manager.ResolveSecrets(ctx, projectID); err != nil {
			cancel()
			logger.Error("failed to resolve secrets",
				golog.String("component", mainComponent),
				golog.String("error", err.Error()))
			os.Exit(1)
		}
		cancel()
		cfg = manager.GetConfig()
	}

	metricsClient := metrics.NewMetrics(cfg.Metrics.Namespace)

	router := gogateway.NewGatewayRouter(gogateway.RouterOptionsFromConfig(cfg, metricsClient))
	defer router.Close()

	seedCredentials(router, cfg, logger)

	subs := gogateway.NewSubscriptionManager(router, gogateway.SubscriptionOptions{
		PollInterval:       cfg.Streaming.PollInterval,
		FetchTimeout:       cfg.Streaming.FetchTimeout,
		BookDepth:          cfg.Streaming.BookDepth,
		SuppressDuplicates: cfg.Streaming.SuppressDuplicates,
	})
	defer subs.Close()

	manager.RegisterOnChangeCallback(func(updated *config.Config) {
		if err := common.ConfigureLogLevel(updated.LogLevel); err != nil {
			logger.Warn("invalid log level in reloaded configuration",
				golog.String("component", mainComponent),
				golog.String("error", err.Error()))
		}
		router.SetSimulationMode(updated.SimulationMode)
		seedCredentials(router, updated, logger)
	})

	wsConfig := ws.DefaultConfig()
	wsConfig.Addr = cfg.Server.Addr()
	if cfg.Server.ReadBufferSize > 0 {
		wsConfig.ReadBufferSize = cfg.Server.ReadBufferSize
	}
	if cfg.Server.WriteBufferSize > 0 {
		wsConfig.WriteBufferSize = cfg.Server.WriteBufferSize
	}
	server := ws.NewServer(router, subs, wsConfig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down",
			golog.String("component", mainComponent),
			golog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed",
				golog.String("component", mainComponent),
				golog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	server.Stop()
}

// seedCredentials pushes configured credentials into the router. Config
// entries for unknown platforms are logged and skipped.
func seedCredentials(router *gogateway.GatewayRouter, cfg *config.Config, logger *golog.Logger) {
	for _, exch := range cfg.Exchanges {
		platform, ok := gogateway.PlatformFromString(exch.Name)
		if !ok {
			logger.Warn("unknown platform in configuration",
				golog.String("component", mainComponent),
				golog.String("platform", exch.Name))
			continue
		}
		if exch.APIKey == "" || exch.APISecret == "" {
			continue
		}
		if err := router.SetCredentials(platform, exch.APIKey, exch.APISecret); err != nil {
			logger.Warn("failed to set credentials",
				golog.String("component", mainComponent),
				golog.String("platform", exch.Name),
				golog.String("error", err.Error()))
		}
	}
}
