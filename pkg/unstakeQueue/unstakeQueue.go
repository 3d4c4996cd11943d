package unstakeQueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/inclawbate/staking-engine/internal/utils"
	"github.com/inclawbate/staking-engine/pkg/calldata"
	"github.com/inclawbate/staking-engine/pkg/eventBus/eventBusTypes"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrLiquidityUnavailable = errors.New("insufficient pool liquidity for unstake")
	ErrReturnUnresolved     = errors.New("previous unstake return is unresolved")
)

type UnstakeQueueConfig struct {
	TokenAddresses map[stakeLedger.TokenClass]string
	PoolWallet     string
	OperatorWallet string
}

type UnstakeQueue struct {
	config    *UnstakeQueueConfig
	ledger    stakeLedger.ILedgerStore
	chain     tokenChain.IChain
	settler   *settlement.Settler
	pending   pendingRecovery.IPendingStore
	bus       eventBusTypes.IEventBus
	timeNowFn func() time.Time
	logger    *zap.Logger
	metrics   *metrics.MetricsSink
}

func NewUnstakeQueue(
	cfg *UnstakeQueueConfig,
	ledger stakeLedger.ILedgerStore,
	chain tokenChain.IChain,
	settler *settlement.Settler,
	pending pendingRecovery.IPendingStore,
	bus eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *UnstakeQueue {
	return &UnstakeQueue{
		config:    cfg,
		ledger:    ledger,
		chain:     chain,
		settler:   settler,
		pending:   pending,
		bus:       bus,
		timeNowFn: time.Now,
		logger:    l,
		metrics:   ms,
	}
}

func (q *UnstakeQueue) tokenAddress(class stakeLedger.TokenClass) (string, error) {
	addr, ok := q.config.TokenAddresses[class]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: no token address for '%s'", stakeLedger.ErrInvalidTokenClass, class)
	}
	return addr, nil
}

// AvailableLiquidity is the pool's balance of the class minus what is already owed to pending unstakes.
func (q *UnstakeQueue) AvailableLiquidity(ctx context.Context, class stakeLedger.TokenClass) (*uint256.Int, error) {
	token, err := q.tokenAddress(class)
	if err != nil {
		return nil, err
	}

	var balance *uint256.Int
	var owed []*stakeLedger.PendingUnstake
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := q.chain.BalanceOf(egCtx, token, q.config.PoolWallet)
		balance = b
		return err
	})
	eg.Go(func() error {
		p, err := q.ledger.ListPendingUnstakes(egCtx, stakeLedger.WithdrawalStatus_Pending)
		owed = p
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	outstanding := uint256.NewInt(0)
	for _, u := range owed {
		if u.Token == class {
			outstanding = new(uint256.Int).Add(outstanding, u.Amount)
		}
	}
	if balance.Lt(outstanding) {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(balance, outstanding), nil
}

// Request withdraws a whole stake. Ownership, activity and liquidity are checked before anything
// is written; on acceptance the stake is deactivated and a pending unstake is created atomically.
func (q *UnstakeQueue) Request(ctx context.Context, wallet string, stakeId string) (*stakeLedger.PendingUnstake, error) {
	wallet, err := utils.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	stake, err := q.ledger.GetStake(ctx, stakeId)
	if err != nil {
		return nil, err
	}
	if !utils.AreAddressesEqual(stake.Wallet, wallet) {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrNotStakeOwner, stakeId)
	}
	if !stake.Active {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrStakeInactive, stakeId)
	}
	if stake.Amount == nil || stake.Amount.IsZero() {
		return nil, fmt.Errorf("%w: stake %s holds nothing", stakeLedger.ErrInvalidAmount, stakeId)
	}

	unresolved, err := q.unresolvedClasses()
	if err != nil {
		return nil, err
	}
	if txHash, ok := unresolved[stake.Token]; ok {
		q.countRequest(stake.Token, "rejected")
		return nil, fmt.Errorf("%w: %s return %s", ErrReturnUnresolved, stake.Token, txHash)
	}

	available, err := q.AvailableLiquidity(ctx, stake.Token)
	if err != nil {
		return nil, err
	}
	if available.Lt(stake.Amount) {
		q.countRequest(stake.Token, "rejected")
		q.logger.Sugar().Warnw("Unstake rejected for liquidity",
			zap.String("stakeId", stakeId),
			zap.String("token", string(stake.Token)),
			zap.String("requested", stake.Amount.Dec()),
			zap.String("available", available.Dec()),
		)
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrLiquidityUnavailable, stake.Amount.Dec(), available.Dec())
	}

	unstake, err := q.ledger.CreatePendingUnstake(ctx, &stakeLedger.PendingUnstake{
		Id:               stakeLedger.NewPendingUnstakeId(),
		StakeId:          stake.Id,
		Wallet:           stake.Wallet,
		Token:            stake.Token,
		Amount:           new(uint256.Int).Set(stake.Amount),
		RequestedAt:      q.timeNowFn(),
		WithdrawalStatus: stakeLedger.WithdrawalStatus_Pending,
	})
	if err != nil {
		return nil, err
	}
	q.countRequest(stake.Token, "accepted")
	q.logger.Sugar().Infow("Unstake accepted",
		zap.String("stakeId", stakeId),
		zap.String("wallet", stake.Wallet),
		zap.String("token", string(stake.Token)),
		zap.String("amount", stake.Amount.Dec()),
	)
	if q.bus != nil {
		q.bus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_UnstakeRequested,
			Data: &eventBusTypes.UnstakeRequestedData{
				StakeId: stake.Id,
				Wallet:  stake.Wallet,
				Token:   string(stake.Token),
				Amount:  stake.Amount.Dec(),
			},
		})
	}
	return unstake, nil
}

func (q *UnstakeQueue) countRequest(class stakeLedger.TokenClass, result string) {
	q.metrics.Incr(metricsTypes.Metric_Incr_UnstakeRequest, []metricsTypes.MetricsLabel{
		{Name: "token", Value: string(class)},
		{Name: "result", Value: result},
	}, 1)
}

type GroupResult struct {
	Token   stakeLedger.TokenClass
	Batch   *calldata.Batch
	TxHash  string
	Status  settlement.Status
	Skipped bool
	Err     error
}

// Settle pays every pending unstake, one batch per token class. Each class is marked returned as
// soon as its own transaction confirms, independently of the other classes. A class whose previous
// return is still unresolved is skipped so it can never be paid twice.
func (q *UnstakeQueue) Settle(ctx context.Context) ([]*GroupResult, error) {
	pending, err := q.ledger.ListPendingUnstakes(ctx, stakeLedger.WithdrawalStatus_Pending)
	if err != nil {
		return nil, err
	}
	unresolved, err := q.unresolvedClasses()
	if err != nil {
		return nil, err
	}

	results := make([]*GroupResult, 0)
	var errs []error
	for _, class := range stakeLedger.TokenClasses {
		payments := make([]calldata.Payment, 0)
		unstakeIds := make([]string, 0)
		for _, u := range pending {
			if u.Token == class {
				payments = append(payments, calldata.Payment{Recipient: u.Wallet, Amount: u.Amount})
				unstakeIds = append(unstakeIds, u.Id)
			}
		}
		if len(payments) == 0 {
			continue
		}
		group := &GroupResult{Token: class}
		results = append(results, group)

		if txHash, ok := unresolved[class]; ok {
			group.Skipped = true
			group.TxHash = txHash
			group.Status = settlement.Status_Pending
			q.logger.Sugar().Warnw("Skipping class with an unresolved return",
				zap.String("token", string(class)),
				zap.String("txHash", txHash),
			)
			continue
		}

		group.Err = q.settleClass(ctx, class, payments, unstakeIds, group)
		if group.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", class, group.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (q *UnstakeQueue) settleClass(
	ctx context.Context,
	class stakeLedger.TokenClass,
	payments []calldata.Payment,
	unstakeIds []string,
	group *GroupResult,
) error {
	token, err := q.tokenAddress(class)
	if err != nil {
		return err
	}
	batch, err := calldata.Aggregate(payments)
	if err != nil {
		return err
	}
	group.Batch = batch

	res, err := q.settler.Settle(ctx, &settlement.Request{
		Kind:         stakeLedger.FundingKind_UnstakeReturn,
		Token:        class,
		TokenAddress: token,
		Wallet:       q.config.OperatorWallet,
		Batch:        batch,
		Records: func(txHash string) []*stakeLedger.FundingRecord {
			return []*stakeLedger.FundingRecord{{
				TxHash:             txHash,
				Kind:               stakeLedger.FundingKind_UnstakeReturn,
				Wallet:             q.config.OperatorWallet,
				Token:              class,
				Amount:             new(uint256.Int).Set(batch.Total),
				ReturnedUnstakeIds: append([]string{}, unstakeIds...),
			}}
		},
	})
	if res != nil {
		group.TxHash = res.TxHash
		group.Status = res.Status
	}
	if err != nil {
		q.logger.Sugar().Errorw("Unstake return did not complete",
			zap.String("token", string(class)),
			zap.String("txHash", group.TxHash),
			zap.Error(err),
		)
		return err
	}
	q.logger.Sugar().Infow("Unstake return settled",
		zap.String("token", string(class)),
		zap.String("txHash", group.TxHash),
		zap.String("status", string(group.Status)),
		zap.Int("wallets", batch.Len()),
		zap.String("total", batch.Total.Dec()),
	)
	return nil
}

func (q *UnstakeQueue) unresolvedClasses() (map[stakeLedger.TokenClass]string, error) {
	entries, err := q.pending.List()
	if err != nil {
		return nil, err
	}
	out := make(map[stakeLedger.TokenClass]string)
	for _, e := range entries {
		if e.Kind == stakeLedger.FundingKind_UnstakeReturn {
			out[e.Token] = e.TxHash
		}
	}
	return out, nil
}
