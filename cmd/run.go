package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline end to end",
	Long:  "Executes ingest, grid, features, model, compare, and report in order against the configured store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stages := []struct {
			mode string
			fn   func(ctx context.Context, st store.Store) error
		}{
			{"ingest", stageIngest},
			{"grid", stageGrid},
			{"features", stageFeatures},
			{"model", stageModel},
			{"compare", stageCompare},
			{"report", stageReport},
		}
		for _, s := range stages {
			zap.L().Info("pipeline stage", zap.String("stage", s.mode))
			if err := runStage(cmd, s.mode, s.fn); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
