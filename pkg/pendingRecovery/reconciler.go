package pendingRecovery

import (
	"context"
	"errors"
	"time"

	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"go.uber.org/zap"
)

// DefaultCutoff is the age after which a pending entry is abandoned.
const DefaultCutoff = 24 * time.Hour

type Resolution string

const (
	Resolution_Recorded  Resolution = "recorded"
	Resolution_Pending   Resolution = "pending"
	Resolution_Reverted  Resolution = "reverted"
	Resolution_Abandoned Resolution = "abandoned"
	Resolution_Rejected  Resolution = "rejected"
	Resolution_Failed    Resolution = "failed"
)

// VerifyFunc checks a confirmed entry against the chain before it is recorded. An error wrapping
// stakeLedger.ErrInvalidDeposit means the transaction does not prove what the entry claims and the
// entry is dropped. Any other error leaves the entry pending for the next sweep.
type VerifyFunc func(ctx context.Context, entry *Entry) error

type SweepResult struct {
	Recorded  int
	Pending   int
	Reverted  int
	Abandoned int
	Rejected  int
	Failed    int
}

func (s *SweepResult) add(r Resolution) {
	switch r {
	case Resolution_Recorded:
		s.Recorded++
	case Resolution_Pending:
		s.Pending++
	case Resolution_Reverted:
		s.Reverted++
	case Resolution_Abandoned:
		s.Abandoned++
	case Resolution_Rejected:
		s.Rejected++
	case Resolution_Failed:
		s.Failed++
	}
}

// Reconciler resolves pending entries against their on-chain receipts.
type Reconciler struct {
	store     IPendingStore
	chain     tokenChain.IReceiptReader
	recorder  *Recorder
	verifiers map[stakeLedger.FundingKind]VerifyFunc
	cutoff    time.Duration
	timeNowFn func() time.Time
	logger    *zap.Logger
	metrics   *metrics.MetricsSink
}

func NewReconciler(store IPendingStore, chain tokenChain.IReceiptReader, recorder *Recorder, cutoff time.Duration, ms *metrics.MetricsSink, l *zap.Logger) *Reconciler {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &Reconciler{
		store:     store,
		chain:     chain,
		recorder:  recorder,
		verifiers: make(map[stakeLedger.FundingKind]VerifyFunc),
		cutoff:    cutoff,
		timeNowFn: time.Now,
		logger:    l,
		metrics:   ms,
	}
}

// SetTimeNowFn replaces the clock, for tests.
func (r *Reconciler) SetTimeNowFn(fn func() time.Time) {
	r.timeNowFn = fn
}

// SetVerifier registers the check run on confirmed entries of kind before they are recorded.
func (r *Reconciler) SetVerifier(kind stakeLedger.FundingKind, fn VerifyFunc) {
	r.verifiers[kind] = fn
}

func (r *Reconciler) Entries() ([]*Entry, error) {
	return r.store.List()
}

// Sweep resolves every pending entry once.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepResult, error) {
	entries, err := r.store.List()
	if err != nil {
		return nil, err
	}
	result := &SweepResult{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.add(r.Resolve(ctx, entry))
	}
	r.logger.Sugar().Infow("Recovery sweep complete",
		zap.Int("entries", len(entries)),
		zap.Int("recorded", result.Recorded),
		zap.Int("pending", result.Pending),
		zap.Int("reverted", result.Reverted),
		zap.Int("abandoned", result.Abandoned),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Resolve checks one entry: past the cutoff it is abandoned, otherwise its receipt decides
// whether it is recorded, dropped as reverted, or left pending.
func (r *Reconciler) Resolve(ctx context.Context, entry *Entry) Resolution {
	if entry.Age(r.timeNowFn()) > r.cutoff {
		r.abandon(entry)
		return Resolution_Abandoned
	}

	receipt, err := r.chain.GetReceipt(ctx, entry.TxHash)
	if err != nil {
		r.logger.Sugar().Warnw("Receipt lookup failed during sweep",
			zap.String("txHash", entry.TxHash),
			zap.Error(err),
		)
		return Resolution_Pending
	}

	switch receipt.Status {
	case tokenChain.ReceiptStatus_Pending:
		return Resolution_Pending
	case tokenChain.ReceiptStatus_Reverted:
		r.logger.Sugar().Errorw("Pending transaction reverted, dropping entry",
			zap.String("txHash", entry.TxHash),
			zap.String("kind", string(entry.Kind)),
		)
		if err := r.recorder.Forget(entry.TxHash); err != nil {
			return Resolution_Failed
		}
		return Resolution_Reverted
	}

	if verify, ok := r.verifiers[entry.Kind]; ok {
		if err := verify(ctx, entry); err != nil {
			if !errors.Is(err, stakeLedger.ErrInvalidDeposit) {
				r.logger.Sugar().Warnw("Verification could not complete, keeping entry pending",
					zap.String("txHash", entry.TxHash),
					zap.String("kind", string(entry.Kind)),
					zap.Error(err),
				)
				return Resolution_Pending
			}
			r.logger.Sugar().Errorw("Confirmed transaction failed verification, dropping entry",
				zap.String("txHash", entry.TxHash),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
			if err := r.recorder.Forget(entry.TxHash); err != nil {
				return Resolution_Failed
			}
			return Resolution_Rejected
		}
	}

	if err := r.recorder.Record(ctx, entry); err != nil {
		return Resolution_Failed
	}
	return Resolution_Recorded
}

func (r *Reconciler) abandon(entry *Entry) {
	amount := ""
	if entry.Amount != nil {
		amount = entry.Amount.Dec()
	}
	keys := make([]string, 0, len(entry.Records))
	for _, rec := range entry.Records {
		keys = append(keys, rec.TxHash)
	}
	r.logger.Sugar().Errorw("Abandoning pending entry past recovery cutoff; on-chain outcome is not reflected in the ledger",
		zap.String("txHash", entry.TxHash),
		zap.String("kind", string(entry.Kind)),
		zap.String("wallet", entry.Wallet),
		zap.String("token", string(entry.Token)),
		zap.String("amount", amount),
		zap.Time("createdAt", entry.CreatedAt),
		zap.Duration("cutoff", r.cutoff),
		zap.Strings("recordKeys", keys),
	)
	r.metrics.Incr(metricsTypes.Metric_Incr_RecoveryAbandoned, []metricsTypes.MetricsLabel{
		{Name: "kind", Value: string(entry.Kind)},
	}, 1)
	if err := r.recorder.Forget(entry.TxHash); err != nil {
		r.logger.Sugar().Errorw("Failed to drop abandoned entry", zap.String("txHash", entry.TxHash), zap.Error(err))
	}
}
