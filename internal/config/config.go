package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Chain string

func (c Chain) String() string {
	return string(c)
}

const (
	Chain_Base        Chain = "base"
	Chain_BaseSepolia Chain = "base_sepolia"
)

const ENV_PREFIX = "STAKING_ENGINE"

const (
	Debug    = "debug"
	ChainKey = "chain"

	EthereumRpcBaseUrls = "ethereum.rpc-urls"
	EthereumChainId     = "ethereum.chain-id"

	OperatorPrivateKey = "operator.private-key"
	OperatorAddress    = "operator.address"

	TokensPrimaryAddress  = "tokens.primary-address"
	TokensBoostedAddress  = "tokens.boosted-address"
	TokensDisperseAddress = "tokens.disperse-address"
	TokensPoolWallet      = "tokens.pool-wallet"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db_name"
	DatabaseSchemaName = "database.schema_name"
	DatabaseSSLMode    = "database.ssl_mode"

	ConfirmationInterval    = "confirmation.interval"
	ConfirmationMaxAttempts = "confirmation.max-attempts"

	RecoveryPendingStorePath = "recovery.pending-store-path"
	RecoveryCutoff           = "recovery.cutoff"
	RecoverySweepSchedule    = "recovery.sweep-schedule"
	RecoveryMaxRecordRetries = "recovery.max-record-retries"
	RecoveryBaseBackoff      = "recovery.base-backoff"

	DistributionSchedule = "distribution.schedule"

	PriceOraclePrimaryUrl   = "price-oracle.primary-url"
	PriceOracleFallbackUrl  = "price-oracle.fallback-url"
	PriceOracleCacheTtl     = "price-oracle.cache-ttl"
	PriceOracleRequestsPerS = "price-oracle.requests-per-second"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample_rate"

	PlanOutputFile = "plan.output-file"
)

type Config struct {
	Debug              bool
	Chain              Chain
	EthereumRpcConfig  EthereumRpcConfig
	OperatorConfig     OperatorConfig
	TokensConfig       TokensConfig
	DatabaseConfig     DatabaseConfig
	ConfirmationConfig ConfirmationConfig
	RecoveryConfig     RecoveryConfig
	DistributionConfig DistributionConfig
	PriceOracleConfig  PriceOracleConfig
	PrometheusConfig   PrometheusConfig
	DataDogConfig      DataDogConfig
}

type EthereumRpcConfig struct {
	BaseUrls []string
	ChainId  uint64
}

type OperatorConfig struct {
	PrivateKey string
	Address    string
}

type TokensConfig struct {
	PrimaryAddress  string
	BoostedAddress  string
	DisperseAddress string
	PoolWallet      string
}

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type ConfirmationConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

type RecoveryConfig struct {
	PendingStorePath string
	Cutoff           time.Duration
	SweepSchedule    string
	MaxRecordRetries int
	BaseBackoff      time.Duration
}

type DistributionConfig struct {
	Schedule string
}

type PriceOracleConfig struct {
	PrimaryUrl        string
	FallbackUrl       string
	CacheTtl          time.Duration
	RequestsPerSecond float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

func StringWithDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func durationWithDefault(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}

func intWithDefault(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

func parseListValue(value []string) []string {
	l := make([]string, 0)
	for _, v := range value {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				l = append(l, s)
			}
		}
	}
	return l
}

func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),
		Chain: Chain(StringWithDefault(viper.GetString(normalizeFlagName(ChainKey)), string(Chain_Base))),

		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrls: parseListValue(viper.GetStringSlice(normalizeFlagName(EthereumRpcBaseUrls))),
			ChainId:  viper.GetUint64(normalizeFlagName(EthereumChainId)),
		},

		OperatorConfig: OperatorConfig{
			PrivateKey: viper.GetString(normalizeFlagName(OperatorPrivateKey)),
			Address:    strings.ToLower(viper.GetString(normalizeFlagName(OperatorAddress))),
		},

		TokensConfig: TokensConfig{
			PrimaryAddress:  strings.ToLower(viper.GetString(normalizeFlagName(TokensPrimaryAddress))),
			BoostedAddress:  strings.ToLower(viper.GetString(normalizeFlagName(TokensBoostedAddress))),
			DisperseAddress: strings.ToLower(viper.GetString(normalizeFlagName(TokensDisperseAddress))),
			PoolWallet:      strings.ToLower(viper.GetString(normalizeFlagName(TokensPoolWallet))),
		},

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:       viper.GetInt(normalizeFlagName(DatabasePort)),
			User:       viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:   viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:     viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName: viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:    viper.GetString(normalizeFlagName(DatabaseSSLMode)),
		},

		ConfirmationConfig: ConfirmationConfig{
			Interval:    durationWithDefault(viper.GetDuration(normalizeFlagName(ConfirmationInterval)), 2*time.Second),
			MaxAttempts: intWithDefault(viper.GetInt(normalizeFlagName(ConfirmationMaxAttempts)), 60),
		},

		RecoveryConfig: RecoveryConfig{
			PendingStorePath: StringWithDefault(viper.GetString(normalizeFlagName(RecoveryPendingStorePath)), "./pending"),
			Cutoff:           durationWithDefault(viper.GetDuration(normalizeFlagName(RecoveryCutoff)), 24*time.Hour),
			SweepSchedule:    StringWithDefault(viper.GetString(normalizeFlagName(RecoverySweepSchedule)), "@every 1m"),
			MaxRecordRetries: intWithDefault(viper.GetInt(normalizeFlagName(RecoveryMaxRecordRetries)), 5),
			BaseBackoff:      durationWithDefault(viper.GetDuration(normalizeFlagName(RecoveryBaseBackoff)), time.Second),
		},

		DistributionConfig: DistributionConfig{
			Schedule: viper.GetString(normalizeFlagName(DistributionSchedule)),
		},

		PriceOracleConfig: PriceOracleConfig{
			PrimaryUrl:        viper.GetString(normalizeFlagName(PriceOraclePrimaryUrl)),
			FallbackUrl:       viper.GetString(normalizeFlagName(PriceOracleFallbackUrl)),
			CacheTtl:          durationWithDefault(viper.GetDuration(normalizeFlagName(PriceOracleCacheTtl)), 30*time.Minute),
			RequestsPerSecond: viper.GetFloat64(normalizeFlagName(PriceOracleRequestsPerS)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},
	}
}

// ContractAddresses are the token, executor and pool wallets for a chain. All addresses lower-case.
type ContractAddresses struct {
	PrimaryToken string
	BoostedToken string
	Disperse     string
	PoolWallet   string
}

var knownContracts = map[Chain]ContractAddresses{
	Chain_Base: {
		PrimaryToken: "0xa1f72459dfa10bad200ac160ecd78c6b77a747be",
		Disperse:     "0xd152f549545093347a162dce210e7293f1452150",
		PoolWallet:   "0x91b5c0d07859cfeafeb67d9694121cd741f049bd",
	},
	Chain_BaseSepolia: {},
}

// GetContractsMapForChain merges the known addresses for the configured chain with any
// addresses set explicitly through the tokens.* flags.
func (c *Config) GetContractsMapForChain() *ContractAddresses {
	known, ok := knownContracts[c.Chain]
	if !ok {
		return nil
	}
	return &ContractAddresses{
		PrimaryToken: StringWithDefault(c.TokensConfig.PrimaryAddress, known.PrimaryToken),
		BoostedToken: StringWithDefault(c.TokensConfig.BoostedAddress, known.BoostedToken),
		Disperse:     StringWithDefault(c.TokensConfig.DisperseAddress, known.Disperse),
		PoolWallet:   StringWithDefault(c.TokensConfig.PoolWallet, known.PoolWallet),
	}
}

func (c *Config) Validate() error {
	contracts := c.GetContractsMapForChain()
	if contracts == nil {
		return fmt.Errorf("unsupported chain '%s'", c.Chain)
	}
	if contracts.PrimaryToken == "" || contracts.BoostedToken == "" || contracts.Disperse == "" {
		return fmt.Errorf("token addresses are not fully configured for chain '%s'", c.Chain)
	}
	if len(c.EthereumRpcConfig.BaseUrls) == 0 {
		return errors.New("at least one ethereum rpc url is required")
	}
	if c.EthereumRpcConfig.ChainId == 0 {
		c.EthereumRpcConfig.ChainId = c.defaultChainId()
	}
	return nil
}

func (c *Config) defaultChainId() uint64 {
	if c.Chain == Chain_BaseSepolia {
		return 84532
	}
	return 8453
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}
