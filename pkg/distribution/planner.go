package distribution

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/calldata"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/weights"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = uint256.NewInt(100)

// Outcome is where one stake's share of a run goes. Transfers, Retained and Compounded always
// sum to ShareAmount.
type Outcome struct {
	StakeId     string
	Wallet      string
	Token       stakeLedger.TokenClass
	Policy      stakeLedger.PolicyKind
	AutoStake   bool
	Weighted    *uint256.Int
	SharePct    decimal.Decimal
	ShareAmount *uint256.Int

	Transfers  []calldata.Payment
	Retained   *uint256.Int
	Compounded *uint256.Int
}

func (o *Outcome) TransferTotal() *uint256.Int {
	total := uint256.NewInt(0)
	for _, p := range o.Transfers {
		total = new(uint256.Int).Add(total, p.Amount)
	}
	return total
}

// Route turns a share amount into transfer pairs according to the stake's policy. Split
// percentages are floored for keep and org and the remainder goes to reinvest, so nothing is lost.
func Route(stake *stakeLedger.Stake, shareAmount *uint256.Int, defaultSplit stakeLedger.SplitPct) (*Outcome, error) {
	policy := stake.Policy.Normalized()
	o := &Outcome{
		StakeId:     stake.Id,
		Wallet:      stake.Wallet,
		Token:       stake.Token,
		Policy:      policy.Kind,
		AutoStake:   stake.AutoStake,
		ShareAmount: new(uint256.Int).Set(shareAmount),
		Transfers:   make([]calldata.Payment, 0, 2),
		Retained:    uint256.NewInt(0),
		Compounded:  uint256.NewInt(0),
	}
	if shareAmount.IsZero() {
		return o, nil
	}
	if stake.AutoStake {
		o.Compounded = new(uint256.Int).Set(shareAmount)
		return o, nil
	}

	switch policy.Kind {
	case stakeLedger.PolicyKind_Keep:
		o.Transfers = append(o.Transfers, calldata.Payment{Recipient: stake.Wallet, Amount: new(uint256.Int).Set(shareAmount)})
	case stakeLedger.PolicyKind_Philanthropy:
		if policy.OrgWallet == "" {
			return nil, fmt.Errorf("%w: stake %s has no org wallet", stakeLedger.ErrInvalidSplit, stake.Id)
		}
		o.Transfers = append(o.Transfers, calldata.Payment{Recipient: policy.OrgWallet, Amount: new(uint256.Int).Set(shareAmount)})
	case stakeLedger.PolicyKind_Reinvest:
		o.Retained = new(uint256.Int).Set(shareAmount)
	case stakeLedger.PolicyKind_Split:
		split := policy.EffectiveSplit(defaultSplit)
		if err := split.Validate(); err != nil {
			return nil, err
		}
		keepAmt, orgAmt, reinvestAmt, err := SplitAmount(shareAmount, split)
		if err != nil {
			return nil, err
		}
		if !orgAmt.IsZero() && policy.OrgWallet == "" {
			// a period-default split can name an org share for a stake that never chose an org
			reinvestAmt = new(uint256.Int).Add(reinvestAmt, orgAmt)
			orgAmt = uint256.NewInt(0)
		}
		if !keepAmt.IsZero() {
			o.Transfers = append(o.Transfers, calldata.Payment{Recipient: stake.Wallet, Amount: keepAmt})
		}
		if !orgAmt.IsZero() {
			o.Transfers = append(o.Transfers, calldata.Payment{Recipient: policy.OrgWallet, Amount: orgAmt})
		}
		o.Retained = reinvestAmt
	default:
		return nil, fmt.Errorf("%w: unknown policy '%s'", stakeLedger.ErrInvalidSplit, policy.Kind)
	}
	return o, nil
}

// SplitAmount returns keep=floor(a*k/100), org=floor(a*g/100) and reinvest=a-keep-org.
func SplitAmount(amount *uint256.Int, split stakeLedger.SplitPct) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	if err := split.Validate(); err != nil {
		return nil, nil, nil, err
	}
	keepAmt, err := numbers.MulDivFloor(amount, uint256.NewInt(uint64(split.Keep)), hundred)
	if err != nil {
		return nil, nil, nil, err
	}
	orgAmt, err := numbers.MulDivFloor(amount, uint256.NewInt(uint64(split.Org)), hundred)
	if err != nil {
		return nil, nil, nil, err
	}
	reinvestAmt := new(uint256.Int).Sub(amount, keepAmt)
	reinvestAmt.Sub(reinvestAmt, orgAmt)
	return keepAmt, orgAmt, reinvestAmt, nil
}

// Plan is the full outcome of one distribution run before anything is submitted.
type Plan struct {
	RunNumber     uint64
	RunAt         time.Time
	Pool          *uint256.Int
	WeightedTotal *uint256.Int
	Outcomes      []*Outcome
	Batch         *calldata.Batch
	Retained      *uint256.Int
	Compounded    *uint256.Int
	// CarrySevenths and CarryUnits are the remainders handed to the next run.
	CarrySevenths uint8
	CarryUnits    *uint256.Int
}

func (p *Plan) HasTransfers() bool {
	return p.Batch != nil && p.Batch.Len() > 0
}

func (p *Plan) TransferTotal() *uint256.Int {
	if p.Batch == nil {
		return uint256.NewInt(0)
	}
	return p.Batch.Total
}

func (p *Plan) Payments() []calldata.Payment {
	payments := make([]calldata.Payment, 0)
	for _, o := range p.Outcomes {
		payments = append(payments, o.Transfers...)
	}
	return payments
}

func (p *Plan) Advance() *stakeLedger.PeriodAdvance {
	return &stakeLedger.PeriodAdvance{
		RunNumber:          p.RunNumber,
		RunAt:              p.RunAt,
		CarrySevenths:      p.CarrySevenths,
		CarryUnits:         new(uint256.Int).Set(p.CarryUnits),
		TotalWeightedUnits: new(uint256.Int).Set(p.WeightedTotal),
	}
}

// CompoundRecords are the auto-stake increments of this run, keyed per run and stake.
func (p *Plan) CompoundRecords() []*stakeLedger.FundingRecord {
	records := make([]*stakeLedger.FundingRecord, 0)
	for _, o := range p.Outcomes {
		if o.Compounded.IsZero() {
			continue
		}
		records = append(records, &stakeLedger.FundingRecord{
			TxHash:  stakeLedger.CompoundKey(p.RunNumber, o.StakeId),
			Kind:    stakeLedger.FundingKind_Compound,
			Wallet:  o.Wallet,
			Token:   o.Token,
			Amount:  new(uint256.Int).Set(o.Compounded),
			StakeId: o.StakeId,
		})
	}
	return records
}

// Records are every ledger write of the run: the reward record carrying the period advance under
// txHash, followed by the compounds.
func (p *Plan) Records(txHash string, operator string) []*stakeLedger.FundingRecord {
	records := []*stakeLedger.FundingRecord{{
		TxHash:  txHash,
		Kind:    stakeLedger.FundingKind_Reward,
		Wallet:  operator,
		Token:   stakeLedger.TokenClass_Primary,
		Amount:  new(uint256.Int).Set(p.TransferTotal()),
		Advance: p.Advance(),
	}}
	return append(records, p.CompoundRecords()...)
}

type Planner struct {
	logger *zap.Logger
}

func NewPlanner(l *zap.Logger) *Planner {
	return &Planner{logger: l}
}

// Plan weighs the active stakes, sizes the daily pool from the weekly rate and carries, allocates
// the pool and routes each share through its stake's policy.
func (p *Planner) Plan(period *stakeLedger.DistributionPeriod, stakes []*stakeLedger.Stake, runAt time.Time) (*Plan, error) {
	snapshot, err := weights.Compute(stakes)
	if err != nil {
		return nil, err
	}
	carryUnits := period.CarryUnits
	if carryUnits == nil {
		carryUnits = uint256.NewInt(0)
	}
	pool, carrySevenths, err := weights.DailyPool(period.WeeklyRate, period.CarrySevenths, carryUnits)
	if err != nil {
		return nil, err
	}
	allocations, dust, err := weights.Allocate(snapshot, pool)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		RunNumber:     period.DistributionCount + 1,
		RunAt:         runAt,
		Pool:          pool,
		WeightedTotal: snapshot.Total,
		Outcomes:      make([]*Outcome, 0, len(allocations)),
		Retained:      uint256.NewInt(0),
		Compounded:    uint256.NewInt(0),
		CarrySevenths: carrySevenths,
		CarryUnits:    dust,
	}
	for _, a := range allocations {
		o, err := Route(a.Stake, a.Amount, period.SplitPct)
		if err != nil {
			return nil, err
		}
		o.Weighted = a.Weighted
		o.SharePct = a.SharePct
		if a.Stake.Policy.Kind == stakeLedger.PolicyKind_Split && !a.Stake.AutoStake && a.Stake.Policy.OrgWallet == "" &&
			a.Stake.Policy.EffectiveSplit(period.SplitPct).Org > 0 {
			p.logger.Sugar().Warnw("Split stake has an org share but no org wallet, retaining it in the pool",
				zap.String("stakeId", a.Stake.Id),
				zap.String("wallet", a.Stake.Wallet),
			)
		}
		plan.Retained = new(uint256.Int).Add(plan.Retained, o.Retained)
		plan.Compounded = new(uint256.Int).Add(plan.Compounded, o.Compounded)
		plan.Outcomes = append(plan.Outcomes, o)
	}

	plan.Batch, err = calldata.Aggregate(plan.Payments())
	if err != nil {
		return nil, err
	}

	p.logger.Sugar().Infow("Distribution planned",
		zap.Uint64("runNumber", plan.RunNumber),
		zap.String("pool", pool.Dec()),
		zap.String("weightedTotal", snapshot.Total.Dec()),
		zap.Int("stakes", len(plan.Outcomes)),
		zap.Int("recipients", plan.Batch.Len()),
		zap.String("transfer", plan.Batch.Total.Dec()),
		zap.String("retained", plan.Retained.Dec()),
		zap.String("compounded", plan.Compounded.Dec()),
		zap.String("carryUnits", dust.Dec()),
		zap.Uint8("carrySevenths", carrySevenths),
	)
	return plan, nil
}
