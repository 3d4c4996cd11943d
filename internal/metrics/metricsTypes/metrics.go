package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_DistributionRun     = "distribution_run"
	Metric_Incr_SettlementOutcome   = "settlement_outcome"
	Metric_Incr_LedgerRecord        = "ledger_record"
	Metric_Incr_RecoveryAbandoned   = "recovery_abandoned"
	Metric_Incr_UnstakeRequest      = "unstake_request"
	Metric_Incr_PriceLookup         = "price_lookup"
	Metric_Gauge_PendingEntries     = "pending_entries"
	Metric_Gauge_WeightedTotal      = "weighted_total"
	Metric_Timing_ConfirmDuration   = "confirm_duration"
	Metric_Timing_DistributionRunMs = "distribution_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_DistributionRun,
			Labels: []string{"status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_SettlementOutcome,
			Labels: []string{"kind", "outcome"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_LedgerRecord,
			Labels: []string{"kind", "result"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_RecoveryAbandoned,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_UnstakeRequest,
			Labels: []string{"token", "result"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_PriceLookup,
			Labels: []string{"source"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_PendingEntries,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_WeightedTotal,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_ConfirmDuration,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_DistributionRunMs,
			Labels: []string{},
		},
	},
}
