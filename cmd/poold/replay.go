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
	"pairpool/internal/event"
	"pairpool/internal/replay"
	"pairpool/internal/storage"
	"pairpool/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
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

	sinks := event.MultiSink{storage.NewJsonlSink(cfg.Out)}

	var store *postgres.Store
	if cfg.PgDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, &pgSink{ctx: ctx, store: store})
	}

	runner, err := replay.NewRunner(replay.RunConfig{
		InputPath:         cfg.In,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		CheckpointEvery:   cfg.CheckpointEvery,
	}, sinks, logger)
	if err != nil {
		return err
	}

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.Bool("pg_store", store != nil),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	if store != nil {
		if err := store.UpsertPools(ctx, runner.Registry().Infos()); err != nil {
			return fmt.Errorf("store pools: %w", err)
		}
	}
	return nil
}

// pgSink adapts the Postgres store to the event sink interface.
type pgSink struct {
	ctx   context.Context
	store *postgres.Store
}

func (s *pgSink) PutEventBatch(events []event.Record) error {
	return s.store.InsertEvents(s.ctx, events)
}
