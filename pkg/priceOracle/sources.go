package priceOracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DexScreenerUrl  = "https://api.dexscreener.com/latest/dex/tokens/%s"
	DexScreenerPath = "pairs.0.priceUsd"

	GeckoTerminalUrl  = "https://api.geckoterminal.com/api/v2/simple/networks/base/token_price/%s"
	GeckoTerminalPath = "data.attributes.token_prices.%s"
)

// IPriceSource fetches a live USD price for a token address.
type IPriceSource interface {
	Name() string
	FetchUsdPrice(ctx context.Context, token string) (decimal.Decimal, error)
}

type HttpSourceConfig struct {
	Name string
	// UrlTemplate and JsonPath take the lower-cased token address as their only verb.
	UrlTemplate       string
	JsonPath          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// HttpSource reads a price out of a JSON HTTP API.
type HttpSource struct {
	config     *HttpSourceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewHttpSource(cfg *HttpSourceConfig, l *zap.Logger) *HttpSource {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HttpSource{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     l,
	}
}

func (s *HttpSource) SetHttpClient(client *http.Client) {
	s.httpClient = client
}

func (s *HttpSource) Name() string {
	return s.config.Name
}

func (s *HttpSource) FetchUsdPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	token = strings.ToLower(token)
	if err := s.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	url := fmt.Sprintf(s.config.UrlTemplate, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s request failed: %w", s.config.Name, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s response unreadable: %w", s.config.Name, err)
	}
	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%s returned status %d", s.config.Name, res.StatusCode)
	}

	path := s.config.JsonPath
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, token)
	}
	value := gjson.GetBytes(body, path)
	if !value.Exists() {
		return decimal.Zero, fmt.Errorf("%s has no price for %s", s.config.Name, token)
	}
	price, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s returned a malformed price '%s': %w", s.config.Name, value.String(), err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s returned a non-positive price for %s", s.config.Name, token)
	}
	return price, nil
}
