package txConfirmer

import (
	"context"
	"errors"
	"time"

	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"go.uber.org/zap"
)

var (
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrTransactionTimeout  = errors.New("transaction confirmation timed out")
)

type Outcome string

const (
	Outcome_Confirmed Outcome = "confirmed"
	Outcome_Reverted  Outcome = "reverted"
	Outcome_TimedOut  Outcome = "timed_out"
)

// RetryPolicy bounds any polling loop: at most MaxAttempts tries, Interval apart.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 60,
		Interval:    2 * time.Second,
	}
}

// Poll calls fn until it reports done, the attempts run out or ctx ends. It returns whether fn
// finished. fn errors are treated as an attempt without a result.
func (p RetryPolicy) Poll(ctx context.Context, fn func(attempt int) (bool, error)) (bool, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		done, err := fn(attempt)
		if err == nil && done {
			return true, nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	return false, nil
}

type Confirmer struct {
	chain   tokenChain.IReceiptReader
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *metrics.MetricsSink
}

func NewConfirmer(chain tokenChain.IReceiptReader, policy RetryPolicy, ms *metrics.MetricsSink, l *zap.Logger) *Confirmer {
	return &Confirmer{
		chain:   chain,
		policy:  policy,
		logger:  l,
		metrics: ms,
	}
}

// Await polls the receipt of txHash. Reverted returns ErrTransactionReverted; exhausting the
// policy returns ErrTransactionTimeout. Neither outcome is ever resubmitted from here.
func (c *Confirmer) Await(ctx context.Context, txHash string, kind string) (Outcome, *tokenChain.Receipt, error) {
	start := time.Now()
	var receipt *tokenChain.Receipt

	finished, err := c.policy.Poll(ctx, func(attempt int) (bool, error) {
		r, err := c.chain.GetReceipt(ctx, txHash)
		if err != nil {
			c.logger.Sugar().Debugw("Receipt read failed",
				zap.String("txHash", txHash),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return false, err
		}
		if r.Status == tokenChain.ReceiptStatus_Pending {
			return false, nil
		}
		receipt = r
		return true, nil
	})
	if err != nil {
		return "", nil, err
	}

	outcome := Outcome_TimedOut
	if finished {
		outcome = Outcome_Confirmed
		if receipt.Status == tokenChain.ReceiptStatus_Reverted {
			outcome = Outcome_Reverted
		}
	}
	c.metrics.Incr(metricsTypes.Metric_Incr_SettlementOutcome, []metricsTypes.MetricsLabel{
		{Name: "kind", Value: kind},
		{Name: "outcome", Value: string(outcome)},
	}, 1)
	c.metrics.Timing(metricsTypes.Metric_Timing_ConfirmDuration, time.Since(start), []metricsTypes.MetricsLabel{
		{Name: "kind", Value: kind},
	})

	switch outcome {
	case Outcome_Reverted:
		c.logger.Sugar().Errorw("Transaction reverted", zap.String("txHash", txHash), zap.String("kind", kind))
		return outcome, receipt, ErrTransactionReverted
	case Outcome_TimedOut:
		c.logger.Sugar().Warnw("Transaction not confirmed within retry policy",
			zap.String("txHash", txHash),
			zap.String("kind", kind),
			zap.Int("attempts", c.policy.MaxAttempts),
		)
		return outcome, nil, ErrTransactionTimeout
	}
	c.logger.Sugar().Infow("Transaction confirmed",
		zap.String("txHash", txHash),
		zap.String("kind", kind),
		zap.Uint64("blockNumber", receipt.BlockNumber),
	)
	return outcome, receipt, nil
}
