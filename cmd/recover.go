package cmd

import (
	"fmt"

	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resolve every entry in the pending log once and report the outcome",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, ctx := mustEngine(true)
		defer e.close()

		entries, err := e.reconciler.Entries()
		if err != nil {
			e.logger.Sugar().Fatalw("Failed to list pending entries", zap.Error(err))
		}
		if len(entries) == 0 {
			fmt.Println("No pending entries")
			return
		}

		counts := make(map[pendingRecovery.Resolution]int)
		bar := progressbar.Default(int64(len(entries)), "resolving")
		for _, entry := range entries {
			counts[e.reconciler.Resolve(ctx, entry)]++
			_ = bar.Add(1)
		}
		_ = bar.Finish()

		for _, r := range []pendingRecovery.Resolution{
			pendingRecovery.Resolution_Recorded,
			pendingRecovery.Resolution_Pending,
			pendingRecovery.Resolution_Reverted,
			pendingRecovery.Resolution_Rejected,
			pendingRecovery.Resolution_Abandoned,
			pendingRecovery.Resolution_Failed,
		} {
			fmt.Printf("%-10s %d\n", r, counts[r])
		}
	},
}
