package priceOracle

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/internal/metrics/metricsTypes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultCacheTtl  = 30 * time.Minute
	defaultCacheSize = 128
)

// IPriceOracle answers "USD price or none". A missing price never blocks token computations.
type IPriceOracle interface {
	GetUsdPrice(ctx context.Context, token string) (decimal.Decimal, bool)
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// PriceOracle tries the primary source, then the fallback, then the last price either returned
// within the cache TTL.
type PriceOracle struct {
	sources   []IPriceSource
	cache     *lru.Cache
	ttl       time.Duration
	timeNowFn func() time.Time
	logger    *zap.Logger
	metrics   *metrics.MetricsSink
}

func NewPriceOracle(sources []IPriceSource, ttl time.Duration, ms *metrics.MetricsSink, l *zap.Logger) (*PriceOracle, error) {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultCacheTtl
	}
	return &PriceOracle{
		sources:   sources,
		cache:     cache,
		ttl:       ttl,
		timeNowFn: time.Now,
		logger:    l,
		metrics:   ms,
	}, nil
}

// NewPriceOracleFromConfig builds the oracle over the configured primary and fallback endpoints,
// defaulting to DexScreener and GeckoTerminal.
func NewPriceOracleFromConfig(cfg *config.PriceOracleConfig, ms *metrics.MetricsSink, l *zap.Logger) (*PriceOracle, error) {
	primary := NewHttpSource(&HttpSourceConfig{
		Name:              "primary",
		UrlTemplate:       config.StringWithDefault(cfg.PrimaryUrl, DexScreenerUrl),
		JsonPath:          DexScreenerPath,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, l)
	fallback := NewHttpSource(&HttpSourceConfig{
		Name:              "fallback",
		UrlTemplate:       config.StringWithDefault(cfg.FallbackUrl, GeckoTerminalUrl),
		JsonPath:          GeckoTerminalPath,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, l)
	return NewPriceOracle([]IPriceSource{primary, fallback}, cfg.CacheTtl, ms, l)
}

func (o *PriceOracle) SetTimeNowFn(fn func() time.Time) {
	o.timeNowFn = fn
}

func (o *PriceOracle) GetUsdPrice(ctx context.Context, token string) (decimal.Decimal, bool) {
	token = strings.ToLower(token)
	for _, source := range o.sources {
		price, err := source.FetchUsdPrice(ctx, token)
		if err != nil {
			o.logger.Sugar().Debugw("Price source failed",
				zap.String("source", source.Name()),
				zap.String("token", token),
				zap.Error(err),
			)
			continue
		}
		o.cache.Add(token, &cachedPrice{price: price, fetchedAt: o.timeNowFn()})
		o.countLookup(source.Name())
		return price, true
	}

	if v, ok := o.cache.Get(token); ok {
		cached := v.(*cachedPrice)
		if o.timeNowFn().Sub(cached.fetchedAt) <= o.ttl {
			o.countLookup("cache")
			return cached.price, true
		}
	}
	o.countLookup("none")
	o.logger.Sugar().Infow("No USD price available", zap.String("token", token))
	return decimal.Zero, false
}

func (o *PriceOracle) countLookup(source string) {
	o.metrics.Incr(metricsTypes.Metric_Incr_PriceLookup, []metricsTypes.MetricsLabel{
		{Name: "source", Value: source},
	}, 1)
}
