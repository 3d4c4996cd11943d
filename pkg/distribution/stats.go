package distribution

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/weights"
	"github.com/shopspring/decimal"
)

// weeks per month times months per year, as the dashboard estimates it
var yearlyWeeks = decimal.NewFromFloat(4.33).Mul(decimal.NewFromInt(12))

// Stats is the treasury view of the staking pool. USD fields are nil when no price is known.
type Stats struct {
	ActiveStakes       int
	TotalStaked        *uint256.Int
	StakedByClass      map[stakeLedger.TokenClass]*uint256.Int
	WeightedTotal      *uint256.Int
	WeeklyRate         *uint256.Int
	DailyRate          decimal.Decimal
	EstimatedApyPct    decimal.Decimal
	DistributionCount  uint64
	LastDistributionAt *time.Time

	UsdPrice       *decimal.Decimal
	TotalStakedUsd *decimal.Decimal
	DailyRateUsd   *decimal.Decimal
}

func (d *Distributor) Stats(ctx context.Context) (*Stats, error) {
	period, err := d.ledger.GetDistributionPeriod(ctx)
	if err != nil {
		return nil, err
	}
	stakes, err := d.ledger.ListActiveStakes(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := weights.Compute(stakes)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ActiveStakes:       len(snapshot.Weights),
		TotalStaked:        uint256.NewInt(0),
		StakedByClass:      make(map[stakeLedger.TokenClass]*uint256.Int),
		WeightedTotal:      snapshot.Total,
		WeeklyRate:         period.WeeklyRate,
		DailyRate:          weights.DailyRate(period.WeeklyRate),
		EstimatedApyPct:    decimal.Zero,
		DistributionCount:  period.DistributionCount,
		LastDistributionAt: period.LastDistributionAt,
	}
	for _, class := range stakeLedger.TokenClasses {
		stats.StakedByClass[class] = uint256.NewInt(0)
	}
	for _, w := range snapshot.Weights {
		if stats.TotalStaked, err = numbers.AddChecked(stats.TotalStaked, w.Stake.Amount); err != nil {
			return nil, err
		}
		stats.StakedByClass[w.Stake.Token] = new(uint256.Int).Add(stats.StakedByClass[w.Stake.Token], w.Stake.Amount)
	}
	if !stats.TotalStaked.IsZero() {
		yearly := numbers.ToDecimal(period.WeeklyRate).Mul(yearlyWeeks)
		stats.EstimatedApyPct = yearly.Div(numbers.ToDecimal(stats.TotalStaked)).Mul(decimal.NewFromInt(100)).Round(1)
	}

	if d.oracle != nil {
		if price, ok := d.oracle.GetUsdPrice(ctx, d.config.PrimaryTokenAddress); ok {
			totalUsd := numbers.ToTokenUnits(stats.TotalStaked).Mul(price).Round(2)
			dailyUsd := stats.DailyRate.Shift(-numbers.TokenDecimals).Mul(price).Round(2)
			stats.UsdPrice = &price
			stats.TotalStakedUsd = &totalUsd
			stats.DailyRateUsd = &dailyUsd
		}
	}
	return stats, nil
}
