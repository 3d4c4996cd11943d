package stakeLedger

import (
	"context"

	"github.com/holiman/uint256"
)

// ILedgerStore owns every persisted staking fact. All writes are repeatable by their key.
type ILedgerStore interface {
	CreateStake(ctx context.Context, stake *Stake) (*Stake, error)
	ListStakes(ctx context.Context, wallet string) ([]*Stake, error)
	ListActiveStakes(ctx context.Context) ([]*Stake, error)
	GetStake(ctx context.Context, id string) (*Stake, error)

	// RecordFunding inserts the record keyed by TxHash and applies its side effect in the same
	// transaction. A record whose TxHash already exists is a no-op returning RecordResult_Duplicate.
	RecordFunding(ctx context.Context, record *FundingRecord) (RecordResult, error)
	GetFundingRecord(ctx context.Context, txHash string) (*FundingRecord, error)

	// CreatePendingUnstake deactivates the stake and inserts the pending row atomically.
	CreatePendingUnstake(ctx context.Context, unstake *PendingUnstake) (*PendingUnstake, error)
	ListPendingUnstakes(ctx context.Context, status WithdrawalStatus) ([]*PendingUnstake, error)
	// MarkReturned moves the listed unstakes from pending to returned. Rows already returned are untouched.
	MarkReturned(ctx context.Context, unstakeIds []string, txHash string) (int64, error)

	GetDistributionPeriod(ctx context.Context) (*DistributionPeriod, error)
	// UpdateDistributionPeriod changes the rate and/or default split. Nil arguments are left unchanged.
	UpdateDistributionPeriod(ctx context.Context, weeklyRate *uint256.Int, splitPct *SplitPct) (*DistributionPeriod, error)
}
