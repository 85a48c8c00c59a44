package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/container"
	apihttp "github.com/garyjia/approval-engine/internal/interfaces/http"
	"github.com/garyjia/approval-engine/pkg/utils"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "approval-server",
		Short:         "Serve the workflow approval engine over HTTP",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "approval-engine",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting approval engine",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("sla_enabled", cfg.SLA.Enabled))

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	var opts []apihttp.ServerOption
	if h := c.MetricsHandler(); h != nil {
		opts = append(opts, apihttp.WithMetricsHandler(h))
	}

	server := apihttp.NewServer(apihttp.ServerConfig{
		Addr:            cfg.Server.Addr(),
		Mode:            cfg.Server.Mode,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
		Version:         version,
	}, c.WorkflowEngine(), c.Scheduler(), c.HTTPLogger(), opts...)

	serveErr := server.Start(ctx)
	if serveErr != nil {
		logger.Error("HTTP server stopped with error", zap.Error(serveErr))
	}

	logger.Info("Shutting down")
	if err := c.Close(); err != nil {
		logger.Error("Container shutdown reported errors", zap.Error(err))
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("Server exited successfully")
	return nil
}
