package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/allowanceGate"
	"github.com/inclawbate/staking-engine/pkg/calldata"
	"github.com/inclawbate/staking-engine/pkg/eventBus/eventBusTypes"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"go.uber.org/zap"
)

// Status is the engine's user-facing view of a settlement.
type Status string

const (
	// Status_Recorded: confirmed on-chain and written to the ledger.
	Status_Recorded Status = "recorded"
	// Status_Reconciling: confirmed on-chain, ledger write still outstanding.
	Status_Reconciling Status = "reconciling"
	// Status_Pending: outcome unknown, left to the recovery sweep.
	Status_Pending  Status = "pending"
	Status_Reverted Status = "reverted"
)

// RecordsFunc builds the funding records for a settlement once its tx hash is known.
type RecordsFunc func(txHash string) []*stakeLedger.FundingRecord

type Request struct {
	Kind         stakeLedger.FundingKind
	Token        stakeLedger.TokenClass
	TokenAddress string
	// Wallet is the wallet the pending entry is attributed to.
	Wallet  string
	Batch   *calldata.Batch
	Records RecordsFunc
}

type Result struct {
	TxHash    string
	Status    Status
	Total     *uint256.Int
	Preflight *allowanceGate.Preflight
}

// Settler runs one batch transfer through the full lifecycle: preflight, submission, durable
// pending entry, confirmation and ledger recording.
type Settler struct {
	chain     tokenChain.IChain
	gate      *allowanceGate.AllowanceGate
	confirmer *txConfirmer.Confirmer
	recorder  *pendingRecovery.Recorder
	bus       eventBusTypes.IEventBus
	timeNowFn func() time.Time
	logger    *zap.Logger
}

func NewSettler(
	chain tokenChain.IChain,
	gate *allowanceGate.AllowanceGate,
	confirmer *txConfirmer.Confirmer,
	recorder *pendingRecovery.Recorder,
	bus eventBusTypes.IEventBus,
	l *zap.Logger,
) *Settler {
	return &Settler{
		chain:     chain,
		gate:      gate,
		confirmer: confirmer,
		recorder:  recorder,
		bus:       bus,
		timeNowFn: time.Now,
		logger:    l,
	}
}

// Settle submits the batch at most once. Errors returned before a tx hash exists mean nothing was
// sent. ErrTransactionReverted is terminal. ErrTransactionTimeout leaves the entry with the
// recovery sweep. A confirmed transfer is never reported as a failure: if the ledger write fails
// the result is Status_Reconciling with a nil error.
func (s *Settler) Settle(ctx context.Context, req *Request) (*Result, error) {
	if req.Batch == nil || req.Batch.Len() == 0 {
		return nil, calldata.ErrEmptyBatch
	}
	if req.Records == nil {
		return nil, fmt.Errorf("settlement of %s has no records", req.Kind)
	}
	result := &Result{Total: req.Batch.Total}

	preflight, err := s.gate.Ensure(ctx, req.TokenAddress, req.Batch.Total)
	result.Preflight = preflight
	if err != nil {
		return result, err
	}

	txHash, err := s.chain.SubmitBatchTransfer(ctx, req.TokenAddress, req.Batch)
	if txHash == "" {
		if err == nil {
			err = fmt.Errorf("batch submission returned no transaction hash")
		}
		s.logger.Sugar().Errorw("Batch transfer rejected",
			zap.String("kind", string(req.Kind)),
			zap.String("token", string(req.Token)),
			zap.Error(err),
		)
		return result, err
	}
	result.TxHash = txHash
	if err != nil {
		if !errors.Is(err, tokenChain.ErrBroadcastUncertain) {
			return result, err
		}
		s.logger.Sugar().Warnw("Batch broadcast uncertain, resolving through its receipt",
			zap.String("txHash", txHash),
			zap.Error(err),
		)
	}

	entry := &pendingRecovery.Entry{
		TxHash:    txHash,
		Kind:      req.Kind,
		Wallet:    req.Wallet,
		Token:     req.Token,
		Amount:    new(uint256.Int).Set(req.Batch.Total),
		CreatedAt: s.timeNowFn(),
		Records:   req.Records(txHash),
	}
	if err := s.recorder.Track(entry); err != nil {
		// the transaction is already out; keep awaiting so it can still be recorded directly
		s.logger.Sugar().Errorw("Failed to persist pending entry",
			zap.String("txHash", txHash),
			zap.Error(err),
		)
	}
	s.logger.Sugar().Infow("Batch transfer submitted",
		zap.String("txHash", txHash),
		zap.String("kind", string(req.Kind)),
		zap.String("token", string(req.Token)),
		zap.Int("recipients", req.Batch.Len()),
		zap.String("total", req.Batch.Total.Dec()),
	)

	outcome, _, err := s.confirmer.Await(ctx, txHash, string(req.Kind))
	switch {
	case outcome == txConfirmer.Outcome_Reverted:
		result.Status = Status_Reverted
		if ferr := s.recorder.Forget(txHash); ferr != nil {
			s.logger.Sugar().Warnw("Failed to drop reverted entry", zap.String("txHash", txHash), zap.Error(ferr))
		}
		s.publish(req, result)
		return result, err
	case err != nil:
		// timed out or cancelled; the recovery sweep owns the entry from here
		result.Status = Status_Pending
		s.publish(req, result)
		return result, err
	}

	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Sugar().Warnw("Transfer succeeded on-chain, reconciling ledger",
			zap.String("txHash", txHash),
			zap.Error(err),
		)
		result.Status = Status_Reconciling
		s.publish(req, result)
		return result, nil
	}
	result.Status = Status_Recorded
	s.publish(req, result)
	return result, nil
}

func (s *Settler) publish(req *Request, result *Result) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(&eventBusTypes.Event{
		Name: eventBusTypes.Event_SettlementResolved,
		Data: &eventBusTypes.SettlementResolvedData{
			TxHash: result.TxHash,
			Kind:   string(req.Kind),
			Token:  string(req.Token),
			Status: string(result.Status),
			Total:  result.Total.Dec(),
		},
	})
}
