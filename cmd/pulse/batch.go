package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

var (
	batchTimeframe string
	batchStart     string
	batchEnd       string
	batchRankOnly  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the scoring pipeline for one period",
	Long: `Scores every active entity for a period, ranks the population and
derives trends and alerts. Without --start and --end the most recently
completed period of the timeframe is used. The report is printed as JSON.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		tf, err := model.ParseTimeframe(batchTimeframe)
		if err != nil {
			return err
		}
		period, err := resolvePeriod(tf, batchStart, batchEnd, time.Now())
		if err != nil {
			return err
		}

		svc, err := startService(ctx)
		if err != nil {
			return err
		}
		defer svc.Stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if batchRankOnly {
			records, err := svc.RankPeriod(ctx, tf, period)
			if err != nil {
				return err
			}
			return enc.Encode(records)
		}

		report, runErr := svc.RunBatch(ctx, tf, period)
		if runErr != nil && !errors.Is(runErr, model.ErrIncompletePopulation) {
			return runErr
		}
		if err := enc.Encode(report); err != nil {
			return err
		}
		logger.Get().Info(ctx, "batch finished",
			logger.String("period", period.String()),
			logger.Int("succeeded", report.Succeeded),
			logger.Int("degraded", report.Degraded),
			logger.Int("failed", report.Failed),
			logger.Bool("ranked", report.Ranked),
		)
		return runErr
	},
}

// resolvePeriod parses explicit bounds or falls back to the last completed period.
func resolvePeriod(tf model.Timeframe, start, end string, now time.Time) (model.Period, error) {
	switch {
	case start == "" && end == "":
		return model.LastCompletedPeriod(tf, now)
	case start == "" || end == "":
		return model.Period{}, fmt.Errorf("%w: --start and --end go together", model.ErrInvalidInput)
	default:
		return model.ParsePeriod(start, end)
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchTimeframe, "timeframe", string(model.Weekly), "daily, weekly, monthly or season")
	batchCmd.Flags().StringVar(&batchStart, "start", "", "period start, YYYY-MM-DD")
	batchCmd.Flags().StringVar(&batchEnd, "end", "", "period end, YYYY-MM-DD")
	batchCmd.Flags().BoolVar(&batchRankOnly, "rank-only", false, "only re-run the ranking pass")
	rootCmd.AddCommand(batchCmd)
}
