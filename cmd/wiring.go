package cmd

import (
	"context"
	"errors"

	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/inclawbate/staking-engine/internal/logger"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/pkg/actionQueue"
	"github.com/inclawbate/staking-engine/pkg/allowanceGate"
	"github.com/inclawbate/staking-engine/pkg/clients/ethereum"
	"github.com/inclawbate/staking-engine/pkg/distribution"
	"github.com/inclawbate/staking-engine/pkg/eventBus"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery/levelPendingStore"
	"github.com/inclawbate/staking-engine/pkg/postgres"
	"github.com/inclawbate/staking-engine/pkg/postgres/migrations"
	"github.com/inclawbate/staking-engine/pkg/priceOracle"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger/postgresLedgerStore"
	"github.com/inclawbate/staking-engine/pkg/staking"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"github.com/inclawbate/staking-engine/pkg/unstakeQueue"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// engine holds every wired component. Chain-dependent fields are nil when built read-only.
type engine struct {
	cfg       *config.Config
	contracts *config.ContractAddresses
	logger    *zap.Logger
	metrics   *metrics.MetricsSink

	grm     *gorm.DB
	ledger  stakeLedger.ILedgerStore
	pending *levelPendingStore.LevelPendingStore
	bus     *eventBus.EventBus
	oracle  *priceOracle.PriceOracle

	chain       tokenChain.IChain
	recorder    *pendingRecovery.Recorder
	reconciler  *pendingRecovery.Reconciler
	settler     *settlement.Settler
	distributor *distribution.Distributor
	unstakes    *unstakeQueue.UnstakeQueue
	staker      *staking.Staker
	actions     *actionQueue.ActionQueue
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.NewConfig()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, l, err
	}
	return cfg, l, nil
}

func openDatabase(cfg *config.Config, l *zap.Logger, migrate bool) (*gorm.DB, error) {
	pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.CreateDbIfNotExists = migrate

	pg, err := postgres.NewPostgres(pgConfig)
	if err != nil {
		return nil, pkgErrors.Wrap(err, "failed to setup postgres connection")
	}

	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, pkgErrors.Wrap(err, "failed to create gorm instance")
	}

	if migrate {
		migrator := migrations.NewMigrator(pg.Db, grm, l)
		if err = migrator.MigrateAll(); err != nil {
			return nil, pkgErrors.Wrap(err, "failed to migrate")
		}
	}
	return grm, nil
}

// newEngine wires the engine. withChain requires an operator key and builds the write path.
func newEngine(cfg *config.Config, l *zap.Logger, withChain bool) (*engine, error) {
	clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, pkgErrors.Wrap(err, "failed to setup metrics clients")
	}
	ms, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, clients, l)
	if err != nil {
		return nil, err
	}

	grm, err := openDatabase(cfg, l, true)
	if err != nil {
		return nil, err
	}

	oracle, err := priceOracle.NewPriceOracleFromConfig(&cfg.PriceOracleConfig, ms, l)
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:       cfg,
		contracts: cfg.GetContractsMapForChain(),
		logger:    l,
		metrics:   ms,
		grm:       grm,
		ledger:    postgresLedgerStore.NewPostgresLedgerStore(grm, l),
		bus:       eventBus.NewEventBus(l),
		oracle:    oracle,
	}

	if !withChain {
		// read-only commands never take the pending log lock, so they can run beside `run`
		e.distributor = distribution.NewDistributor(e.distributorConfig(cfg.OperatorConfig.Address), e.ledger,
			distribution.NewPlanner(l), nil, nil, nil, oracle, e.bus, ms, l)
		return e, nil
	}

	pending, err := levelPendingStore.NewLevelPendingStore(cfg.RecoveryConfig.PendingStorePath, l)
	if err != nil {
		e.close()
		return nil, pkgErrors.Wrap(err, "failed to open pending store")
	}
	e.pending = pending

	if cfg.OperatorConfig.PrivateKey == "" {
		e.close()
		return nil, errors.New("an operator private key is required for this command")
	}
	client := ethereum.NewClient(ethereum.ConvertGlobalConfigToEthereumConfig(&cfg.EthereumRpcConfig), l)
	chain, err := tokenChain.NewEthChain(&tokenChain.EthChainConfig{
		ChainId:         cfg.EthereumRpcConfig.ChainId,
		OperatorKey:     cfg.OperatorConfig.PrivateKey,
		DisperseAddress: e.contracts.Disperse,
	}, client, l)
	if err != nil {
		e.close()
		return nil, err
	}
	e.chain = chain
	e.wireWritePath()
	return e, nil
}

func (e *engine) distributorConfig(operator string) *distribution.DistributorConfig {
	return &distribution.DistributorConfig{
		PrimaryTokenAddress: e.contracts.PrimaryToken,
		OperatorAddress:     operator,
	}
}

func (e *engine) tokenAddresses() map[stakeLedger.TokenClass]string {
	return map[stakeLedger.TokenClass]string{
		stakeLedger.TokenClass_Primary: e.contracts.PrimaryToken,
		stakeLedger.TokenClass_Boosted: e.contracts.BoostedToken,
	}
}

func (e *engine) wireWritePath() {
	cfg, l, ms := e.cfg, e.logger, e.metrics

	confirmer := txConfirmer.NewConfirmer(e.chain, txConfirmer.RetryPolicy{
		MaxAttempts: cfg.ConfirmationConfig.MaxAttempts,
		Interval:    cfg.ConfirmationConfig.Interval,
	}, ms, l)
	e.recorder = pendingRecovery.NewRecorder(e.ledger, e.pending, &pendingRecovery.RecorderConfig{
		MaxRetries:  cfg.RecoveryConfig.MaxRecordRetries,
		BaseBackoff: cfg.RecoveryConfig.BaseBackoff,
	}, ms, l)
	e.reconciler = pendingRecovery.NewReconciler(e.pending, e.chain, e.recorder, cfg.RecoveryConfig.Cutoff, ms, l)

	gate := allowanceGate.NewAllowanceGate(e.chain, confirmer, l)
	e.settler = settlement.NewSettler(e.chain, gate, confirmer, e.recorder, e.bus, l)

	e.distributor = distribution.NewDistributor(e.distributorConfig(e.chain.OperatorAddress()), e.ledger,
		distribution.NewPlanner(l), e.settler, e.recorder, e.pending, e.oracle, e.bus, ms, l)

	e.unstakes = unstakeQueue.NewUnstakeQueue(&unstakeQueue.UnstakeQueueConfig{
		TokenAddresses: e.tokenAddresses(),
		PoolWallet:     e.contracts.PoolWallet,
		OperatorWallet: e.chain.OperatorAddress(),
	}, e.ledger, e.chain, e.settler, e.pending, e.bus, ms, l)

	e.staker = staking.NewStaker(&staking.StakingConfig{
		TokenAddresses: e.tokenAddresses(),
		PoolWallet:     e.contracts.PoolWallet,
	}, e.ledger, e.chain, confirmer, e.recorder, e.bus, l)
	e.reconciler.SetVerifier(stakeLedger.FundingKind_Deposit, e.staker.VerifyDeposit)

	e.actions = actionQueue.NewActionQueue(e.distributor, e.unstakes, e.reconciler, l)
}

func (e *engine) close() {
	if e.actions != nil {
		e.actions.Close()
	}
	if e.pending != nil {
		if err := e.pending.Close(); err != nil {
			e.logger.Sugar().Errorw("Failed to close pending store", zap.Error(err))
		}
	}
	if db, err := e.grm.DB(); err == nil {
		_ = db.Close()
	}
}

// mustEngine builds the engine or exits. Commands share it so setup failures read the same.
func mustEngine(withChain bool) (*engine, context.Context) {
	cfg, l, err := loadConfig()
	if err != nil {
		if l != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}
		panic(err)
	}
	e, err := newEngine(cfg, l, withChain)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup engine", zap.Error(err))
	}
	return e, context.Background()
}
