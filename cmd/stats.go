package cmd

import (
	"fmt"

	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pool totals, the daily rate and the estimated APY",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, ctx := mustEngine(false)
		defer e.close()

		stats, err := e.distributor.Stats(ctx)
		if err != nil {
			e.logger.Sugar().Fatalw("Failed to compute stats", zap.Error(err))
		}

		fmt.Printf("Active stakes:   %d\n", stats.ActiveStakes)
		fmt.Printf("Total staked:    %s\n", numbers.ToTokenUnits(stats.TotalStaked).String())
		for _, class := range stakeLedger.TokenClasses {
			if v, ok := stats.StakedByClass[class]; ok {
				fmt.Printf("  %-8s       %s\n", class, numbers.ToTokenUnits(v).String())
			}
		}
		fmt.Printf("Weighted total:  %s\n", numbers.ToTokenUnits(stats.WeightedTotal).String())
		fmt.Printf("Weekly rate:     %s\n", numbers.ToTokenUnits(stats.WeeklyRate).String())
		fmt.Printf("Daily rate:      %s\n", stats.DailyRate.Shift(-numbers.TokenDecimals).String())
		fmt.Printf("Estimated APY:   %s%%\n", stats.EstimatedApyPct.String())
		fmt.Printf("Distributions:   %d\n", stats.DistributionCount)
		if stats.LastDistributionAt != nil {
			fmt.Printf("Last run:        %s\n", stats.LastDistributionAt.UTC().Format("2006-01-02 15:04:05"))
		}
		if stats.UsdPrice != nil {
			fmt.Printf("Price (USD):     %s\n", stats.UsdPrice.String())
			fmt.Printf("Staked (USD):    %s\n", stats.TotalStakedUsd.StringFixed(2))
			fmt.Printf("Daily (USD):     %s\n", stats.DailyRateUsd.StringFixed(2))
		}
	},
}
