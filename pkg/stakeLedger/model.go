package stakeLedger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

type TokenClass string

const (
	TokenClass_Primary TokenClass = "primary"
	TokenClass_Boosted TokenClass = "boosted"
)

var TokenClasses = []TokenClass{TokenClass_Primary, TokenClass_Boosted}

func (t TokenClass) Valid() bool {
	return t == TokenClass_Primary || t == TokenClass_Boosted
}

// Multiplier is the reward weight of one smallest unit of the class.
func (t TokenClass) Multiplier() uint64 {
	if t == TokenClass_Boosted {
		return 2
	}
	return 1
}

func ParseTokenClass(s string) (TokenClass, error) {
	t := TokenClass(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidTokenClass, s)
	}
	return t, nil
}

type Stake struct {
	Id        string
	Wallet    string
	Token     TokenClass
	Amount    *uint256.Int
	CreatedAt time.Time
	Active    bool
	Policy    RedirectPolicy
	AutoStake bool
}

func (s *Stake) Multiplier() uint64 {
	return s.Token.Multiplier()
}

// WeightedAmount is amount * multiplier. Inactive stakes weigh nothing.
func (s *Stake) WeightedAmount() *uint256.Int {
	if !s.Active {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Mul(s.Amount, uint256.NewInt(s.Multiplier()))
}

func (s *Stake) Validate() error {
	if !s.Token.Valid() {
		return fmt.Errorf("%w: '%s'", ErrInvalidTokenClass, s.Token)
	}
	if s.Active && (s.Amount == nil || s.Amount.IsZero()) {
		return fmt.Errorf("%w: active stake must hold a positive amount", ErrInvalidAmount)
	}
	return s.Policy.Validate()
}

type DistributionPeriod struct {
	WeeklyRate         *uint256.Int
	DistributionCount  uint64
	LastDistributionAt *time.Time
	// TotalWeightedUnits is a display cache only; weights are recomputed from active stakes.
	TotalWeightedUnits *uint256.Int
	SplitPct           SplitPct
	// CarrySevenths is the remainder of weekly_rate mod 7 not yet paid out, in sevenths of a unit.
	CarrySevenths uint8
	// CarryUnits is whole-unit floor dust left over from previous runs.
	CarryUnits *uint256.Int
}

// PeriodAdvance is applied together with the Reward record of a run.
type PeriodAdvance struct {
	RunNumber          uint64
	RunAt              time.Time
	CarrySevenths      uint8
	CarryUnits         *uint256.Int
	TotalWeightedUnits *uint256.Int
}

type WithdrawalStatus string

const (
	WithdrawalStatus_Pending  WithdrawalStatus = "pending"
	WithdrawalStatus_Returned WithdrawalStatus = "returned"
)

type PendingUnstake struct {
	Id               string
	StakeId          string
	Wallet           string
	Token            TokenClass
	Amount           *uint256.Int
	RequestedAt      time.Time
	WithdrawalStatus WithdrawalStatus
	ReturnTxHash     string
}

type FundingKind string

const (
	FundingKind_Deposit       FundingKind = "deposit"
	FundingKind_Reward        FundingKind = "reward"
	FundingKind_Compound      FundingKind = "compound"
	FundingKind_UnstakeReturn FundingKind = "unstake_return"
)

// FundingRecord is the ledger's proof that a funds movement happened. TxHash is the only dedupe key;
// synthetic keys are used for movements that have no transaction of their own.
type FundingRecord struct {
	TxHash     string
	Kind       FundingKind
	Wallet     string
	Token      TokenClass
	Amount     *uint256.Int
	StakeId    string
	RecordedAt time.Time

	// Deposit only: the stake created from this record.
	Policy    RedirectPolicy
	AutoStake bool `json:",omitempty"`

	// Reward only.
	Advance *PeriodAdvance `json:",omitempty"`

	// UnstakeReturn only: the pending unstakes this transaction settled.
	ReturnedUnstakeIds []string `json:",omitempty"`
}

func (r *FundingRecord) Validate() error {
	if r.TxHash == "" {
		return fmt.Errorf("%w: funding record requires a tx hash", ErrInvalidAmount)
	}
	if r.Amount == nil {
		return fmt.Errorf("%w: funding record requires an amount", ErrInvalidAmount)
	}
	switch r.Kind {
	case FundingKind_Deposit:
		if r.Amount.IsZero() {
			return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidDeposit)
		}
		if !r.Token.Valid() {
			return fmt.Errorf("%w: '%s'", ErrInvalidTokenClass, r.Token)
		}
		if r.StakeId == "" {
			return fmt.Errorf("%w: deposit requires a stake id", ErrInvalidDeposit)
		}
		return r.Policy.Validate()
	case FundingKind_Compound:
		if r.StakeId == "" || r.Amount.IsZero() {
			return fmt.Errorf("%w: compound requires a stake and positive amount", ErrInvalidAmount)
		}
	case FundingKind_Reward:
		if r.Advance == nil {
			return fmt.Errorf("%w: reward requires a period advance", ErrInvalidAmount)
		}
	case FundingKind_UnstakeReturn:
		if len(r.ReturnedUnstakeIds) == 0 {
			return fmt.Errorf("%w: unstake return requires at least one pending unstake", ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("unknown funding kind '%s'", r.Kind)
	}
	return nil
}

type RecordResult string

const (
	RecordResult_Created   RecordResult = "created"
	RecordResult_Duplicate RecordResult = "duplicate"
)
