package weights

import (
	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/shopspring/decimal"
)

// SharePlaces is the number of decimal places share percentages are rounded to for display.
const SharePlaces = 6

const daysPerWeek = 7

type StakeWeight struct {
	Stake    *stakeLedger.Stake
	Weighted *uint256.Int
	SharePct decimal.Decimal
}

type Snapshot struct {
	Weights []*StakeWeight
	Total   *uint256.Int
}

// Compute weighs every active stake. Inactive stakes are skipped.
func Compute(stakes []*stakeLedger.Stake) (*Snapshot, error) {
	total := uint256.NewInt(0)
	ws := make([]*StakeWeight, 0, len(stakes))
	for _, s := range stakes {
		if !s.Active {
			continue
		}
		w, err := numbers.MulChecked(s.Amount, uint256.NewInt(s.Multiplier()))
		if err != nil {
			return nil, err
		}
		if total, err = numbers.AddChecked(total, w); err != nil {
			return nil, err
		}
		ws = append(ws, &StakeWeight{Stake: s, Weighted: w})
	}
	for _, w := range ws {
		w.SharePct = SharePct(w.Weighted, total)
	}
	return &Snapshot{Weights: ws, Total: total}, nil
}

func WeightedTotal(stakes []*stakeLedger.Stake) (*uint256.Int, error) {
	s, err := Compute(stakes)
	if err != nil {
		return nil, err
	}
	return s.Total, nil
}

// SharePct is weighted/total*100 for display. A zero total yields zero.
func SharePct(weighted, total *uint256.Int) decimal.Decimal {
	return numbers.Percentage(weighted, total, SharePlaces)
}

// DailyRate is weekly/7 as an exact decimal, for display only.
func DailyRate(weeklyRate *uint256.Int) decimal.Decimal {
	return numbers.ToDecimal(weeklyRate).Div(decimal.NewFromInt(daysPerWeek))
}

// DailyPool returns the whole units distributable in one run and the sevenths to carry forward.
// pool = floor((weekly + carrySevenths)/7) + carryUnits.
func DailyPool(weeklyRate *uint256.Int, carrySevenths uint8, carryUnits *uint256.Int) (*uint256.Int, uint8, error) {
	numerator, err := numbers.AddChecked(weeklyRate, uint256.NewInt(uint64(carrySevenths)))
	if err != nil {
		return nil, 0, err
	}
	quotient, remainder := new(uint256.Int).DivMod(numerator, uint256.NewInt(daysPerWeek), new(uint256.Int))
	pool, err := numbers.AddChecked(quotient, carryUnits)
	if err != nil {
		return nil, 0, err
	}
	return pool, uint8(remainder.Uint64()), nil
}

type Allocation struct {
	Stake    *stakeLedger.Stake
	Weighted *uint256.Int
	SharePct decimal.Decimal
	Amount   *uint256.Int
}

// Allocate splits pool across the snapshot as floor(weighted*pool/total) per stake. The floor dust
// is returned so it can be carried into the next run. An empty snapshot allocates nothing.
func Allocate(snapshot *Snapshot, pool *uint256.Int) ([]*Allocation, *uint256.Int, error) {
	allocations := make([]*Allocation, 0, len(snapshot.Weights))
	if snapshot.Total.IsZero() {
		return allocations, new(uint256.Int).Set(pool), nil
	}
	allocated := uint256.NewInt(0)
	for _, w := range snapshot.Weights {
		amount, err := numbers.MulDivFloor(w.Weighted, pool, snapshot.Total)
		if err != nil {
			return nil, nil, err
		}
		allocated = new(uint256.Int).Add(allocated, amount)
		allocations = append(allocations, &Allocation{
			Stake:    w.Stake,
			Weighted: w.Weighted,
			SharePct: w.SharePct,
			Amount:   amount,
		})
	}
	dust := new(uint256.Int).Sub(pool, allocated)
	return allocations, dust, nil
}
