package cmd

import (
	"fmt"

	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Run one distribution: plan, settle the batch, record the outcome",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, ctx := mustEngine(true)
		defer e.close()

		result, err := e.distributor.Run(ctx)
		if err != nil {
			e.logger.Sugar().Fatalw("Distribution failed", zap.Error(err))
		}
		plan := result.Plan
		fmt.Printf("Run:        %d\n", plan.RunNumber)
		fmt.Printf("Pool:       %s\n", numbers.ToTokenUnits(plan.Pool).String())
		recipients := 0
		if plan.Batch != nil {
			recipients = plan.Batch.Len()
		}
		fmt.Printf("Transfers:  %d recipients, %s\n", recipients, numbers.ToTokenUnits(plan.TransferTotal()).String())
		fmt.Printf("Compounded: %s\n", numbers.ToTokenUnits(plan.Compounded).String())
		fmt.Printf("Retained:   %s\n", numbers.ToTokenUnits(plan.Retained).String())
		fmt.Printf("Tx:         %s\n", result.TxHash)
		fmt.Printf("Status:     %s\n", result.Status)
	},
}

var settleUnstakesCmd = &cobra.Command{
	Use:   "settle-unstakes",
	Short: "Return every pending unstake, one batch per token class",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, ctx := mustEngine(true)
		defer e.close()

		groups, err := e.unstakes.Settle(ctx)
		for _, g := range groups {
			switch {
			case g.Skipped:
				fmt.Printf("%-8s skipped: previous return unresolved\n", g.Token)
			case g.Err != nil:
				fmt.Printf("%-8s %s %s: %v\n", g.Token, g.TxHash, g.Status, g.Err)
			default:
				fmt.Printf("%-8s %s %s (%d wallets)\n", g.Token, g.TxHash, g.Status, g.Batch.Len())
			}
		}
		if err != nil {
			e.logger.Sugar().Fatalw("Unstake settlement incomplete", zap.Error(err))
		}
	},
}
