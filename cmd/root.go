package cmd

import (
	"context"
	"fmt"
	"os"

	"qcwarehouse/internal/core/config"
	"qcwarehouse/internal/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnvFile(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "qcwarehouse",
		Short:         "QC counting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newNormalizeCmd())
	return rootCmd
}

func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
