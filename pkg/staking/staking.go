package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/utils"
	"github.com/inclawbate/staking-engine/pkg/eventBus/eventBusTypes"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"go.uber.org/zap"
)

type StakingConfig struct {
	TokenAddresses map[stakeLedger.TokenClass]string
	PoolWallet     string
}

// DepositRequest is a stake deposit the wallet already broadcast: a transfer of Amount of the
// class token into the pool wallet.
type DepositRequest struct {
	TxHash    string
	Wallet    string
	Token     stakeLedger.TokenClass
	Amount    *uint256.Int
	Policy    stakeLedger.RedirectPolicy
	AutoStake bool
}

type DepositResult struct {
	TxHash  string
	StakeId string
	Status  settlement.Status
	Result  stakeLedger.RecordResult
}

// Staker turns verified deposit transactions into stakes.
type Staker struct {
	config    *StakingConfig
	ledger    stakeLedger.ILedgerStore
	chain     tokenChain.IChain
	confirmer *txConfirmer.Confirmer
	recorder  *pendingRecovery.Recorder
	bus       eventBusTypes.IEventBus
	timeNowFn func() time.Time
	logger    *zap.Logger
}

func NewStaker(
	cfg *StakingConfig,
	ledger stakeLedger.ILedgerStore,
	chain tokenChain.IChain,
	confirmer *txConfirmer.Confirmer,
	recorder *pendingRecovery.Recorder,
	bus eventBusTypes.IEventBus,
	l *zap.Logger,
) *Staker {
	return &Staker{
		config:    cfg,
		ledger:    ledger,
		chain:     chain,
		confirmer: confirmer,
		recorder:  recorder,
		bus:       bus,
		timeNowFn: time.Now,
		logger:    l,
	}
}

func (s *Staker) validate(req *DepositRequest) (*DepositRequest, error) {
	txHash, err := utils.NormalizeTxHash(req.TxHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stakeLedger.ErrInvalidDeposit, err)
	}
	wallet, err := utils.NormalizeAddress(req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stakeLedger.ErrInvalidDeposit, err)
	}
	if !req.Token.Valid() {
		return nil, fmt.Errorf("%w: '%s'", stakeLedger.ErrInvalidTokenClass, req.Token)
	}
	if _, ok := s.config.TokenAddresses[req.Token]; !ok {
		return nil, fmt.Errorf("%w: no token address for '%s'", stakeLedger.ErrInvalidTokenClass, req.Token)
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", stakeLedger.ErrInvalidAmount)
	}
	policy := req.Policy.Normalized()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &DepositRequest{
		TxHash:    txHash,
		Wallet:    wallet,
		Token:     req.Token,
		Amount:    new(uint256.Int).Set(req.Amount),
		Policy:    policy,
		AutoStake: req.AutoStake,
	}, nil
}

func (s *Staker) SetTimeNowFn(fn func() time.Time) {
	s.timeNowFn = fn
}

func (s *Staker) entryFor(req *DepositRequest) *pendingRecovery.Entry {
	return &pendingRecovery.Entry{
		TxHash:    req.TxHash,
		Kind:      stakeLedger.FundingKind_Deposit,
		Wallet:    req.Wallet,
		Token:     req.Token,
		Amount:    req.Amount,
		CreatedAt: s.timeNowFn(),
		Records: []*stakeLedger.FundingRecord{{
			TxHash:    req.TxHash,
			Kind:      stakeLedger.FundingKind_Deposit,
			Wallet:    req.Wallet,
			Token:     req.Token,
			Amount:    req.Amount,
			StakeId:   stakeLedger.StakeIdForDeposit(req.TxHash),
			Policy:    req.Policy,
			AutoStake: req.AutoStake,
		}},
	}
}

// Stake waits for the deposit transaction, checks that it moved the claimed amount of the class
// token from the wallet into the pool, and records the stake. A tx hash already in the ledger
// returns its existing stake as a duplicate without touching the chain.
func (s *Staker) Stake(ctx context.Context, request *DepositRequest) (*DepositResult, error) {
	req, err := s.validate(request)
	if err != nil {
		return nil, err
	}
	result := &DepositResult{TxHash: req.TxHash, StakeId: stakeLedger.StakeIdForDeposit(req.TxHash)}

	existing, err := s.ledger.GetFundingRecord(ctx, req.TxHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		result.StakeId = existing.StakeId
		result.Status = settlement.Status_Recorded
		result.Result = stakeLedger.RecordResult_Duplicate
		return result, nil
	}

	entry := s.entryFor(req)
	if err := s.recorder.Track(entry); err != nil {
		return nil, err
	}

	outcome, _, err := s.confirmer.Await(ctx, req.TxHash, string(stakeLedger.FundingKind_Deposit))
	if outcome == txConfirmer.Outcome_Reverted {
		s.forget(req.TxHash)
		result.Status = settlement.Status_Reverted
		return result, fmt.Errorf("%w: %w", stakeLedger.ErrInvalidDeposit, err)
	}
	if err != nil {
		result.Status = settlement.Status_Pending
		return result, err
	}

	if err := s.VerifyDeposit(ctx, entry); err != nil {
		if !errors.Is(err, stakeLedger.ErrInvalidDeposit) {
			s.logger.Sugar().Warnw("Deposit verification could not complete, leaving it to recovery",
				zap.String("txHash", req.TxHash),
				zap.String("wallet", req.Wallet),
				zap.Error(err),
			)
			result.Status = settlement.Status_Reconciling
			return result, nil
		}
		s.forget(req.TxHash)
		s.logger.Sugar().Warnw("Deposit rejected",
			zap.String("txHash", req.TxHash),
			zap.String("wallet", req.Wallet),
			zap.Error(err),
		)
		return result, err
	}

	if err := s.recorder.Record(ctx, entry); err != nil {
		result.Status = settlement.Status_Reconciling
		return result, nil
	}
	result.Status = settlement.Status_Recorded
	result.Result = stakeLedger.RecordResult_Created
	s.logger.Sugar().Infow("Deposit staked",
		zap.String("txHash", req.TxHash),
		zap.String("stakeId", result.StakeId),
		zap.String("wallet", req.Wallet),
		zap.String("token", string(req.Token)),
		zap.String("amount", req.Amount.Dec()),
	)
	if s.bus != nil {
		s.bus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_DepositStaked,
			Data: &eventBusTypes.DepositStakedData{
				TxHash:  req.TxHash,
				StakeId: result.StakeId,
				Wallet:  req.Wallet,
				Token:   string(req.Token),
				Amount:  req.Amount.Dec(),
				Result:  string(result.Result),
			},
		})
	}
	return result, nil
}

func (s *Staker) forget(txHash string) {
	if err := s.recorder.Forget(txHash); err != nil {
		s.logger.Sugar().Errorw("Failed to drop pending deposit",
			zap.String("txHash", txHash),
			zap.Error(err),
		)
	}
}

var ErrNoMatchingTransfer = errors.New("no matching token transfer into the pool")

// VerifyDeposit requires a Transfer of the entry's token class from the wallet to the pool wallet
// for exactly the claimed amount.
func (s *Staker) VerifyDeposit(ctx context.Context, entry *pendingRecovery.Entry) error {
	token := s.config.TokenAddresses[entry.Token]
	logs, err := s.chain.TransferLogs(ctx, entry.TxHash)
	if err != nil {
		return err
	}
	for _, l := range logs {
		if !utils.AreAddressesEqual(l.Token, token) ||
			!utils.AreAddressesEqual(l.To, s.config.PoolWallet) ||
			!utils.AreAddressesEqual(l.From, entry.Wallet) {
			continue
		}
		if l.Amount.IsZero() {
			return fmt.Errorf("%w: transfer amount is zero", stakeLedger.ErrInvalidDeposit)
		}
		if !l.Amount.Eq(entry.Amount) {
			return fmt.Errorf("%w: transferred %s, claimed %s", stakeLedger.ErrInvalidDeposit, l.Amount.Dec(), entry.Amount.Dec())
		}
		return nil
	}
	return fmt.Errorf("%w: %w", stakeLedger.ErrInvalidDeposit, ErrNoMatchingTransfer)
}
