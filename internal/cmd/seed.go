package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilebank/internal/config"
	"github.com/MeKo-Tech/tilebank/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Pre-fill and expire cache stores from seed.json and cleanup.json",
	Long: `Seed walks the bounding boxes and zoom levels declared in seed.json,
downloading missing or stale tiles into each cache store, and deletes
expired tiles per cleanup.json. With neither --seed nor --cleanup both
phases run, cleanup first.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Int("num_processes", 0, "Worker count (0 uses per-entry concurrency, then NumCPU)")
	seedCmd.Flags().Bool("seed", false, "Run only the seed phase")
	seedCmd.Flags().Bool("cleanup", false, "Run only the cleanup phase")
	seedCmd.Flags().Bool("progress", true, "Show the progress line on stderr")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, seedCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("seed.num_processes", "num_processes")
	mustBind("seed.seed", "seed")
	mustBind("seed.cleanup", "cleanup")
	mustBind("seed.progress", "progress")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	dir, err := dataDir()
	if err != nil {
		return err
	}
	layout := config.Layout{DataDir: dir}

	seeds, err := config.LoadSeed(layout.SeedPath())
	if err != nil {
		return err
	}
	cleanups, err := config.LoadCleanup(layout.CleanupPath())
	if err != nil {
		return err
	}

	doSeed := viper.GetBool("seed.seed")
	doCleanup := viper.GetBool("seed.cleanup")
	if !doSeed && !doCleanup {
		doSeed, doCleanup = true, true
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// SIGINT stops intake and exits 0 once in-flight tiles finish;
	// SIGTERM does the same but exits 1 so the supervisor restarts us.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	restart := make(chan bool, 1)
	go func() {
		s := <-sig
		logger.Info("stopping run", "signal", s.String())
		restart <- s == syscall.SIGTERM
		cancel()
	}()

	runner := seed.NewRunner(layout, os.Getenv("POSTGRESQL_BASE_URI"), logger)
	runner.Workers = viper.GetInt("seed.num_processes")
	runner.ShowProgress = viper.GetBool("seed.progress")

	var runErr error
	if doCleanup {
		runErr = runner.CleanupAll(ctx, cleanups)
	}
	if doSeed {
		if err := runner.SeedAll(ctx, seeds); err != nil && runErr == nil {
			runErr = err
		}
	}

	select {
	case wantRestart := <-restart:
		if wantRestart {
			os.Exit(1)
		}
		return nil
	default:
	}
	return runErr
}
