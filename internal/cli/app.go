package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/pkg/utils"
)

func (o *globalOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      o.logLevel,
		OutputPath: "stderr",
		Format:     "console",
		Service:    "approvalctl",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// withContainer starts a container without background workers, runs fn and
// closes it again. Pending notifications drain during Close.
func (o *globalOptions) withContainer(ctx context.Context, fn func(ctx context.Context, c *container.Container) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg, logger, container.WithoutWorkers())
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx, c)
	if err := c.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
