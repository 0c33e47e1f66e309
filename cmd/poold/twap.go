package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairpool/internal/config"
	"pairpool/internal/replay"
)

// runTwap replays a scenario with no sinks or checkpointing and prints
// each pool's time-weighted average prices over its lifetime.
func runTwap(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input operations file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := replay.NewRunner(replay.RunConfig{InputPath: cfg.In}, nil, logger)
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil {
		return err
	}

	reports := runner.TWAPReports()
	if len(reports) == 0 {
		logger.Warn("no pool accrued price history", zap.String("in", cfg.In))
		return nil
	}
	for _, r := range reports {
		fmt.Printf("pool %s  %s/%s  window %ds  price_a %s  price_b %s\n",
			r.Pool.Hex(),
			r.AssetA.Hex(),
			r.AssetB.Hex(),
			r.Seconds,
			r.PriceA.Text('f', 8),
			r.PriceB.Text('f', 8),
		)
	}
	return nil
}
