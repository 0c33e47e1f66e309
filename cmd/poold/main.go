package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poold",
		Short:        "Constant-product pair ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scenario of pool operations",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the event store")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("checkpoint-every", 100, "ops between checkpoint saves")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	twapCmd := &cobra.Command{
		Use:   "twap",
		Short: "Replay a scenario and report time-weighted average prices",
		RunE:  runTwap,
	}

	twapCmd.Flags().String("in", "", "input operations JSONL")
	twapCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)
	root.AddCommand(twapCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
