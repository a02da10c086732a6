// Command fume is the stateful, coverage-guided MQTT broker fuzzer: it
// drives a concurrent worker pool of Markov-chain fuzzing sessions against
// a broker subprocess, retains packet sequences that elicit previously
// unseen response bytes, and persists seed state for later replay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mqttfume/fume/internal/app"
	"mqttfume/fume/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fume",
		Short: "Coverage-guided MQTT broker fuzzer",
	}
	root.AddCommand(newFuzzCmd())
	root.AddCommand(newReplayCmd())
	return root
}

func newFuzzCmd() *cobra.Command {
	cfg := config.Load()
	cfg.Target = config.DefaultTarget
	cfg.Threads = config.DefaultThreads
	cfg.TimeoutMS = config.DefaultTimeoutMS
	cfg.Transport = config.DefaultTransport

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run live fuzzing against a broker until it crashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.BrokerCommand == "" {
				return fmt.Errorf("fuzz: --broker-command is required")
			}
			logger := newLogger(cfg.LogLevel)
			a := app.New(cfg, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.RunFuzz(ctx)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Threads, "threads", cfg.Threads, "number of concurrent fuzzing workers")
	flags.StringVar(&cfg.Target, "target", cfg.Target, "broker address, host:port")
	flags.StringVar(&cfg.BrokerCommand, "broker-command", "", "shell command that starts the broker under test")
	flags.IntVar(&cfg.TimeoutMS, "timeout", cfg.TimeoutMS, "per-operation transport timeout, milliseconds")
	flags.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport kind: tcp or ws")
	flags.BoolVar(&cfg.SeedCVECorpus, "seed-cve-corpus", false, "seed the coverage table with known-CVE packet sequences at startup")
	flags.StringVar(&cfg.PacketPoolPath, "packet-pool", cfg.PacketPoolPath, "coverage table snapshot path")
	flags.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "run history database path")

	return cmd
}

func newReplayCmd() *cobra.Command {
	cfg := config.Load()
	cfg.Target = config.DefaultTarget
	cfg.TimeoutMS = config.DefaultTimeoutMS
	cfg.Transport = config.DefaultTransport

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run persisted (seed, iterations) pairs until the broker crashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Threads is unused by replay but Validate requires it positive;
			// the replay driver spawns one worker per persisted record
			// instead of a fixed pool.
			cfg.Threads = 1
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.BrokerCommand == "" {
				return fmt.Errorf("replay: --broker-command is required")
			}
			logger := newLogger(cfg.LogLevel)
			a := app.New(cfg, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.RunReplay(ctx)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.Sequential, "sequential", false, "replay seeds one at a time instead of concurrently")
	flags.StringVar(&cfg.Target, "target", cfg.Target, "broker address, host:port")
	flags.StringVar(&cfg.BrokerCommand, "broker-command", "", "shell command that starts the broker under test")
	flags.IntVar(&cfg.TimeoutMS, "timeout", cfg.TimeoutMS, "per-operation transport timeout, milliseconds")
	flags.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport kind: tcp or ws")
	flags.StringVar(&cfg.PacketPoolPath, "packet-pool", cfg.PacketPoolPath, "coverage table snapshot path")
	flags.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "run history database path")

	return cmd
}
