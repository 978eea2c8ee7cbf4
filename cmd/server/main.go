package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/garyjia/vendor-lifecycle/internal/config"
	"github.com/garyjia/vendor-lifecycle/internal/container"
	httpapi "github.com/garyjia/vendor-lifecycle/internal/interfaces/http"
	"github.com/garyjia/vendor-lifecycle/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the yaml configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Vendor Lifecycle Engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path),
		zap.Int("renewal_window_days", cfg.Workflow.RenewalWindowDays))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return fmt.Errorf("build container config: %w", err)
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	opts := []httpapi.ServerOption{
		httpapi.WithHealth(func() (bool, interface{}) {
			health := c.Health()
			return health.Overall, health.Components
		}),
	}
	if m := c.Metrics(); m != nil {
		opts = append(opts, httpapi.WithMetrics(m, c.MetricsHandler()))
	}

	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, httpapi.Services{
		Engine:       c.Engine(),
		Registration: services.Registration,
		Query:        services.Query,
		Export:       services.Export,
	}, utils.NewKVLogger(logger), opts...)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info("Shutting down server...", zap.String("signal", sig.String()))
		cancel()
	}()

	return server.Start(ctx)
}
