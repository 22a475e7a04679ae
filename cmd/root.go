package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/config"
	"github.com/sells-group/riskgrid/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "riskgrid",
	Short: "Grid-based spatial risk model for Chicago weapons violations",
	Long: "Downloads crime and municipal-service points from the Chicago open-data portal, " +
		"aggregates them onto a fishnet grid, fits a cross-validated Poisson risk model, " +
		"and compares it against a kernel-density baseline on a held-out year.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// runStage wraps one pipeline stage with config validation, store lifecycle,
// and run bookkeeping.
func runStage(cmd *cobra.Command, mode string, fn func(ctx context.Context, st store.Store) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(mode); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	run, err := st.StartRun(ctx, mode)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("command", mode), zap.String("run_id", run.ID))
	log.Info("stage started")

	if err := fn(ctx, st); err != nil {
		if ferr := st.FinishRun(ctx, run.ID, "failed"); ferr != nil {
			log.Warn("could not mark run failed", zap.Error(ferr))
		}
		return err
	}

	log.Info("stage complete")
	return st.FinishRun(ctx, run.ID, "complete")
}

func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
