package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/lifx-lan/internal/app/bootstrap"
)

// serveCmd 常驻运行：UDP 引擎 + HTTP 接口
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LAN engine and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return bootstrap.Run(ctx, cfg, logger)
	},
}
