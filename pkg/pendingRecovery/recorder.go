package pendingRecovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"go.uber.org/zap"
)

type RecorderConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		MaxRetries:  5,
		BaseBackoff: time.Second,
	}
}

// Recorder writes the records of confirmed transactions into the ledger.
type Recorder struct {
	ledger  stakeLedger.ILedgerStore
	store   IPendingStore
	config  *RecorderConfig
	logger  *zap.Logger
	metrics *metrics.MetricsSink
}

func NewRecorder(ledger stakeLedger.ILedgerStore, store IPendingStore, cfg *RecorderConfig, ms *metrics.MetricsSink, l *zap.Logger) *Recorder {
	return &Recorder{
		ledger:  ledger,
		store:   store,
		config:  cfg,
		logger:  l,
		metrics: ms,
	}
}

// Track durably stores the entry. It must be called before awaiting the transaction's confirmation.
// Tracking a tx hash again keeps the CreatedAt of the earlier entry so the cutoff is not extended.
func (r *Recorder) Track(entry *Entry) error {
	existing, err := r.store.Get(entry.TxHash)
	switch {
	case err == nil:
		if !existing.CreatedAt.IsZero() && (entry.CreatedAt.IsZero() || existing.CreatedAt.Before(entry.CreatedAt)) {
			entry.CreatedAt = existing.CreatedAt
		}
	case !errors.Is(err, ErrEntryNotFound):
		return err
	}
	if err := r.store.Put(entry); err != nil {
		return err
	}
	r.reportPending()
	return nil
}

// Forget removes an entry whose transaction will never need recording (e.g. it reverted).
func (r *Recorder) Forget(txHash string) error {
	if err := r.store.Delete(txHash); err != nil {
		return err
	}
	r.reportPending()
	return nil
}

func (r *Recorder) reportPending() {
	entries, err := r.store.List()
	if err != nil {
		return
	}
	r.metrics.Gauge(metricsTypes.Metric_Gauge_PendingEntries, float64(len(entries)), nil)
}

// Record writes every record of a confirmed entry, then removes the entry from the pending set.
// A duplicate result counts as written. If the ledger keeps failing the entry stays pending for
// the next sweep and an ErrLedgerWriteFailure is returned.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	for _, record := range entry.Records {
		if err := r.recordWithBackoff(ctx, record); err != nil {
			r.logger.Sugar().Errorw("Failed to record confirmed transaction, keeping it pending",
				zap.String("txHash", entry.TxHash),
				zap.String("recordKey", record.TxHash),
				zap.String("kind", string(record.Kind)),
				zap.Error(err),
			)
			return err
		}
	}
	if err := r.Forget(entry.TxHash); err != nil {
		// the records are written; a leftover entry is resolved as duplicates by the next sweep
		r.logger.Sugar().Warnw("Recorded entry could not be removed from the pending set",
			zap.String("txHash", entry.TxHash),
			zap.Error(err),
		)
	}
	return nil
}

func (r *Recorder) recordWithBackoff(ctx context.Context, record *stakeLedger.FundingRecord) error {
	backoff := r.config.BaseBackoff
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		result, err := r.ledger.RecordFunding(ctx, record)
		if err == nil || errors.Is(err, stakeLedger.ErrDuplicateRecord) {
			if err != nil {
				result = stakeLedger.RecordResult_Duplicate
			}
			r.metrics.Incr(metricsTypes.Metric_Incr_LedgerRecord, []metricsTypes.MetricsLabel{
				{Name: "kind", Value: string(record.Kind)},
				{Name: "result", Value: string(result)},
			}, 1)
			r.logger.Sugar().Infow("Funding record written",
				zap.String("txHash", record.TxHash),
				zap.String("kind", string(record.Kind)),
				zap.String("result", string(result)),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		r.logger.Sugar().Warnw("Ledger write failed, retrying",
			zap.String("txHash", record.TxHash),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
	}
	if errors.Is(lastErr, stakeLedger.ErrLedgerWriteFailure) {
		return lastErr
	}
	return fmt.Errorf("%w: %v", stakeLedger.ErrLedgerWriteFailure, lastErr)
}

// Validation errors will fail the same way on every attempt.
func isRetryable(err error) bool {
	for _, permanent := range []error{
		stakeLedger.ErrInvalidAmount,
		stakeLedger.ErrInvalidSplit,
		stakeLedger.ErrInvalidDeposit,
		stakeLedger.ErrInvalidTokenClass,
		stakeLedger.ErrStakeNotFound,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
