package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/inclawbate/staking-engine/pkg/eventBus/eventBusTypes"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/priceOracle"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"go.uber.org/zap"
)

// ErrRunUnresolved is returned while a previous run's transfer is still awaiting recovery. Running
// again before it resolves would pay the same run twice.
var ErrRunUnresolved = errors.New("previous distribution run is unresolved")

type DistributorConfig struct {
	PrimaryTokenAddress string
	OperatorAddress     string
}

type RunResult struct {
	Plan   *Plan
	TxHash string
	Status settlement.Status
}

type Distributor struct {
	config    *DistributorConfig
	ledger    stakeLedger.ILedgerStore
	planner   *Planner
	settler   *settlement.Settler
	recorder  *pendingRecovery.Recorder
	pending   pendingRecovery.IPendingStore
	oracle    priceOracle.IPriceOracle
	bus       eventBusTypes.IEventBus
	timeNowFn func() time.Time
	logger    *zap.Logger
	metrics   *metrics.MetricsSink
}

func NewDistributor(
	cfg *DistributorConfig,
	ledger stakeLedger.ILedgerStore,
	planner *Planner,
	settler *settlement.Settler,
	recorder *pendingRecovery.Recorder,
	pending pendingRecovery.IPendingStore,
	oracle priceOracle.IPriceOracle,
	bus eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *Distributor {
	return &Distributor{
		config:    cfg,
		ledger:    ledger,
		planner:   planner,
		settler:   settler,
		recorder:  recorder,
		pending:   pending,
		oracle:    oracle,
		bus:       bus,
		timeNowFn: time.Now,
		logger:    l,
		metrics:   ms,
	}
}

func (d *Distributor) SetTimeNowFn(fn func() time.Time) {
	d.timeNowFn = fn
}

// Preview plans the next run from the current ledger snapshot without changing anything.
func (d *Distributor) Preview(ctx context.Context) (*Plan, error) {
	period, err := d.ledger.GetDistributionPeriod(ctx)
	if err != nil {
		return nil, err
	}
	stakes, err := d.ledger.ListActiveStakes(ctx)
	if err != nil {
		return nil, err
	}
	return d.planner.Plan(period, stakes, d.timeNowFn())
}

func (d *Distributor) unresolvedReward() (string, error) {
	entries, err := d.pending.List()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Kind == stakeLedger.FundingKind_Reward {
			return e.TxHash, nil
		}
	}
	return "", nil
}

// Run plans and settles one distribution. All ledger effects of the run (period advance, carries
// and compounds) are written only once its transfer confirms, or directly when nothing is
// transferred.
func (d *Distributor) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	if txHash, err := d.unresolvedReward(); err != nil {
		return nil, err
	} else if txHash != "" {
		return nil, fmt.Errorf("%w: %s", ErrRunUnresolved, txHash)
	}

	plan, err := d.Preview(ctx)
	if err != nil {
		d.countRun("failed")
		return nil, err
	}
	d.metrics.Gauge(metricsTypes.Metric_Gauge_WeightedTotal, plan.WeightedTotal.Float64(), nil)

	result := &RunResult{Plan: plan}
	if !plan.HasTransfers() {
		runKey := stakeLedger.RunKey(plan.RunNumber)
		entry := &pendingRecovery.Entry{
			TxHash:    runKey,
			Kind:      stakeLedger.FundingKind_Reward,
			Wallet:    d.config.OperatorAddress,
			Token:     stakeLedger.TokenClass_Primary,
			Amount:    uint256.NewInt(0),
			CreatedAt: d.timeNowFn(),
			Records:   plan.Records(runKey, d.config.OperatorAddress),
		}
		if err := d.recorder.Record(ctx, entry); err != nil {
			d.countRun("failed")
			return nil, err
		}
		result.TxHash = runKey
		result.Status = settlement.Status_Recorded
		d.finish(result, start)
		return result, nil
	}

	res, err := d.settler.Settle(ctx, &settlement.Request{
		Kind:         stakeLedger.FundingKind_Reward,
		Token:        stakeLedger.TokenClass_Primary,
		TokenAddress: d.config.PrimaryTokenAddress,
		Wallet:       d.config.OperatorAddress,
		Batch:        plan.Batch,
		Records: func(txHash string) []*stakeLedger.FundingRecord {
			return plan.Records(txHash, d.config.OperatorAddress)
		},
	})
	if res != nil {
		result.TxHash = res.TxHash
		result.Status = res.Status
	}
	if err != nil {
		d.countRun(string(result.Status))
		d.logger.Sugar().Errorw("Distribution run did not complete",
			zap.Uint64("runNumber", plan.RunNumber),
			zap.String("txHash", result.TxHash),
			zap.String("status", string(result.Status)),
			zap.Error(err),
		)
		return result, err
	}
	d.finish(result, start)
	return result, nil
}

func (d *Distributor) countRun(status string) {
	if status == "" {
		status = "failed"
	}
	d.metrics.Incr(metricsTypes.Metric_Incr_DistributionRun, []metricsTypes.MetricsLabel{
		{Name: "status", Value: status},
	}, 1)
}

func (d *Distributor) finish(result *RunResult, start time.Time) {
	d.countRun(string(result.Status))
	d.metrics.Timing(metricsTypes.Metric_Timing_DistributionRunMs, time.Since(start), nil)
	d.logger.Sugar().Infow("Distribution run complete",
		zap.Uint64("runNumber", result.Plan.RunNumber),
		zap.String("txHash", result.TxHash),
		zap.String("status", string(result.Status)),
		zap.String("transferred", result.Plan.TransferTotal().Dec()),
	)
	if d.bus == nil {
		return
	}
	d.bus.Publish(&eventBusTypes.Event{
		Name: eventBusTypes.Event_DistributionRun,
		Data: &eventBusTypes.DistributionRunData{
			RunNumber:   result.Plan.RunNumber,
			Pool:        result.Plan.Pool.Dec(),
			Transferred: result.Plan.TransferTotal().Dec(),
			Retained:    result.Plan.Retained.Dec(),
			Compounded:  result.Plan.Compounded.Dec(),
			Status:      string(result.Status),
			TxHash:      result.TxHash,
		},
	})
}
