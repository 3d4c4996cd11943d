package cmd

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/distribution"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// planRow is one stake's line in the exported plan.
type planRow struct {
	StakeId     string `csv:"stake_id"`
	Wallet      string `csv:"wallet"`
	Token       string `csv:"token"`
	Policy      string `csv:"policy"`
	AutoStake   bool   `csv:"auto_stake"`
	Weighted    string `csv:"weighted"`
	SharePct    string `csv:"share_pct"`
	ShareAmount string `csv:"share_amount"`
	Transferred string `csv:"transferred"`
	Compounded  string `csv:"compounded"`
	Retained    string `csv:"retained"`
}

func planRows(plan *distribution.Plan) []*planRow {
	rows := make([]*planRow, 0, len(plan.Outcomes))
	for _, o := range plan.Outcomes {
		rows = append(rows, &planRow{
			StakeId:     o.StakeId,
			Wallet:      o.Wallet,
			Token:       string(o.Token),
			Policy:      string(o.Policy),
			AutoStake:   o.AutoStake,
			Weighted:    o.Weighted.Dec(),
			SharePct:    o.SharePct.String(),
			ShareAmount: o.ShareAmount.Dec(),
			Transferred: o.TransferTotal().Dec(),
			Compounded:  o.Compounded.Dec(),
			Retained:    o.Retained.Dec(),
		})
	}
	return rows
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the next distribution run without submitting anything",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		e, ctx := mustEngine(false)
		defer e.close()

		plan, err := e.distributor.Preview(ctx)
		if err != nil {
			e.logger.Sugar().Fatalw("Failed to plan distribution", zap.Error(err))
		}
		rows := planRows(plan)

		outputFile := viper.GetString(config.KebabToSnakeCase(config.PlanOutputFile))
		if outputFile == "" {
			out, err := gocsv.MarshalString(&rows)
			if err != nil {
				e.logger.Sugar().Fatalw("Failed to render plan", zap.Error(err))
			}
			fmt.Print(out)
		} else {
			f, err := os.Create(outputFile)
			if err != nil {
				e.logger.Sugar().Fatalw("Failed to create plan file", zap.String("path", outputFile), zap.Error(err))
			}
			defer f.Close()
			if err := gocsv.MarshalFile(&rows, f); err != nil {
				e.logger.Sugar().Fatalw("Failed to write plan file", zap.Error(err))
			}
		}

		fmt.Fprintf(os.Stderr, "run %d: pool %s, transfers %s, compounded %s, retained %s, carry %d/7 + %s\n",
			plan.RunNumber,
			numbers.ToTokenUnits(plan.Pool).String(),
			numbers.ToTokenUnits(plan.TransferTotal()).String(),
			numbers.ToTokenUnits(plan.Compounded).String(),
			numbers.ToTokenUnits(plan.Retained).String(),
			plan.CarrySevenths,
			plan.CarryUnits.Dec(),
		)
	},
}
