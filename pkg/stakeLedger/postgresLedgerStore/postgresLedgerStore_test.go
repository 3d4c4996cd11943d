package postgresLedgerStore

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/inclawbate/staking-engine/internal/logger"
	"github.com/inclawbate/staking-engine/internal/tests"
	"github.com/inclawbate/staking-engine/pkg/postgres"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txHash1 = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func setup(t *testing.T) (*PostgresLedgerStore, sqlmock.Sqlmock) {
	grm, mock, err := tests.NewMockGorm()
	if err != nil {
		t.Fatal(err)
	}
	return NewPostgresLedgerStore(grm, zap.NewNop()), mock
}

func depositRecord() *stakeLedger.FundingRecord {
	return &stakeLedger.FundingRecord{
		TxHash:  txHash1,
		Kind:    stakeLedger.FundingKind_Deposit,
		Wallet:  walletA,
		Token:   stakeLedger.TokenClass_Primary,
		Amount:  uint256.NewInt(100),
		StakeId: stakeLedger.StakeIdForDeposit(txHash1),
		Policy:  stakeLedger.KeepPolicy(),
	}
}

var stakeColumns = []string{"id", "wallet", "token", "amount", "active", "policy", "org_wallet", "split_keep", "split_org", "split_reinvest", "auto_stake", "created_at"}

func Test_PostgresLedgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should insert the record and create the stake in one transaction", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("insert into stakes")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := store.RecordFunding(ctx, depositRecord())
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Created, res)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should report a duplicate without applying the side effect", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		res, err := store.RecordFunding(ctx, depositRecord())
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Duplicate, res)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should treat a unique violation as a duplicate", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).
			WillReturnError(errors.New(`duplicate key value violates unique constraint "uniq_funding_records_tx_hash"`))
		mock.ExpectRollback()

		res, err := store.RecordFunding(ctx, depositRecord())
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Duplicate, res)
	})
	t.Run("Should wrap other database errors as a ledger write failure", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := store.RecordFunding(ctx, depositRecord())
		assert.ErrorIs(t, err, stakeLedger.ErrLedgerWriteFailure)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should roll back a compound for a missing stake", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("update stakes set amount = amount +")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.RecordFunding(ctx, &stakeLedger.FundingRecord{
			TxHash:  stakeLedger.CompoundKey(1, "missing"),
			Kind:    stakeLedger.FundingKind_Compound,
			Wallet:  walletA,
			Token:   stakeLedger.TokenClass_Primary,
			Amount:  uint256.NewInt(5),
			StakeId: "missing",
		})
		assert.ErrorIs(t, err, stakeLedger.ErrStakeNotFound)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should advance the period with a reward record", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("insert into funding_records")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("distribution_count = distribution_count + 1")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := store.RecordFunding(ctx, &stakeLedger.FundingRecord{
			TxHash: txHash1,
			Kind:   stakeLedger.FundingKind_Reward,
			Token:  stakeLedger.TokenClass_Primary,
			Amount: uint256.NewInt(99),
			Advance: &stakeLedger.PeriodAdvance{
				RunNumber:  1,
				RunAt:      time.Now(),
				CarryUnits: uint256.NewInt(1),
			},
		})
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Created, res)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should reject an invalid record before touching the database", func(t *testing.T) {
		store, mock := setup(t)
		r := depositRecord()
		r.Amount = uint256.NewInt(0)
		_, err := store.RecordFunding(ctx, r)
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidDeposit)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should read the distribution period", func(t *testing.T) {
		store, mock := setup(t)
		last := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta("select * from distribution_period")).WillReturnRows(
			sqlmock.NewRows([]string{"id", "weekly_rate", "distribution_count", "last_distribution_at", "total_weighted_units", "split_keep", "split_org", "split_reinvest", "carry_sevenths", "carry_units"}).
				AddRow(1, "7000000000000000000000", 4, last, "300", 50, 30, 20, 3, "2"),
		)

		p, err := store.GetDistributionPeriod(ctx)
		assert.Nil(t, err)
		assert.Equal(t, "7000000000000000000000", p.WeeklyRate.Dec())
		assert.Equal(t, uint64(4), p.DistributionCount)
		assert.Equal(t, stakeLedger.SplitPct{Keep: 50, Org: 30, Reinvest: 20}, p.SplitPct)
		assert.Equal(t, uint8(3), p.CarrySevenths)
		assert.Equal(t, uint64(2), p.CarryUnits.Uint64())
		assert.True(t, last.Equal(*p.LastDistributionAt))
	})
	t.Run("Should list active stakes", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectQuery(regexp.QuoteMeta("select * from stakes where active = true")).WillReturnRows(
			sqlmock.NewRows(stakeColumns).
				AddRow("s1", walletA, "boosted", "50", true, "split", nil, 60, 0, 40, false, time.Now()),
		)
		stakes, err := store.ListActiveStakes(ctx)
		assert.Nil(t, err)
		assert.Len(t, stakes, 1)
		assert.Equal(t, stakeLedger.TokenClass_Boosted, stakes[0].Token)
		assert.Equal(t, uint64(100), stakes[0].WeightedAmount().Uint64())
		assert.Equal(t, uint8(40), stakes[0].Policy.Split.Reinvest)
	})
	t.Run("Should refuse to unstake an inactive stake", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("select * from stakes where id =")).WillReturnRows(
			sqlmock.NewRows(stakeColumns).
				AddRow("s1", walletA, "primary", "50", false, "keep", nil, 0, 0, 0, false, time.Now()),
		)
		mock.ExpectRollback()

		_, err := store.CreatePendingUnstake(ctx, &stakeLedger.PendingUnstake{
			Id:      "u1",
			StakeId: "s1",
			Wallet:  walletA,
			Token:   stakeLedger.TokenClass_Primary,
			Amount:  uint256.NewInt(50),
		})
		assert.ErrorIs(t, err, stakeLedger.ErrStakeInactive)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should deactivate and insert the pending unstake atomically", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("select * from stakes where id =")).WillReturnRows(
			sqlmock.NewRows(stakeColumns).
				AddRow("s1", walletA, "primary", "50", true, "keep", nil, 0, 0, 0, false, time.Now()),
		)
		mock.ExpectExec(regexp.QuoteMeta("update stakes set active = false")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("insert into pending_unstakes")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		u, err := store.CreatePendingUnstake(ctx, &stakeLedger.PendingUnstake{
			Id:      "u1",
			StakeId: "s1",
			Wallet:  walletA,
			Token:   stakeLedger.TokenClass_Primary,
			Amount:  uint256.NewInt(50),
		})
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.WithdrawalStatus_Pending, u.WithdrawalStatus)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should mark pending unstakes returned", func(t *testing.T) {
		store, mock := setup(t)
		mock.ExpectExec(regexp.QuoteMeta("update pending_unstakes set withdrawal_status")).
			WithArgs("returned", txHash1, "u1", "u2", "pending").
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := store.MarkReturned(ctx, []string{"u1", "u2"}, txHash1)
		assert.Nil(t, err)
		assert.Equal(t, int64(2), n)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should not touch the database for an empty id list", func(t *testing.T) {
		store, mock := setup(t)
		n, err := store.MarkReturned(ctx, nil, txHash1)
		assert.Nil(t, err)
		assert.Equal(t, int64(0), n)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("Should validate the split before updating the period", func(t *testing.T) {
		store, mock := setup(t)
		_, err := store.UpdateDistributionPeriod(ctx, nil, &stakeLedger.SplitPct{Keep: 90, Org: 20})
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidSplit)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
}

func Test_PostgresLedgerStoreIntegration(t *testing.T) {
	if !tests.HasIntegrationDatabase() {
		t.Skip("STAKING_ENGINE_DATABASE_HOST not set")
	}
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.DatabaseConfig = *tests.GetDbConfigFromEnv()
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: os.Getenv(config.Debug) == "true"})

	testDbName, _, grm, err := postgres.GetTestPostgresDatabase(cfg.DatabaseConfig, l)
	if err != nil {
		t.Fatalf("Failed to setup test database: %v", err)
	}
	t.Cleanup(func() {
		postgres.TeardownTestDatabase(testDbName, cfg, grm, l)
	})
	store := NewPostgresLedgerStore(grm, l)

	t.Run("Should record a deposit once", func(t *testing.T) {
		res, err := store.RecordFunding(ctx, depositRecord())
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Created, res)

		res, err = store.RecordFunding(ctx, depositRecord())
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Duplicate, res)

		stakes, err := store.ListStakes(ctx, walletA)
		assert.Nil(t, err)
		assert.Len(t, stakes, 1)
	})
	t.Run("Should mark only the unstakes named by a return record", func(t *testing.T) {
		txHash2 := "0x2222222222222222222222222222222222222222222222222222222222222222"
		second := depositRecord()
		second.TxHash = txHash2
		second.StakeId = stakeLedger.StakeIdForDeposit(txHash2)
		_, err := store.RecordFunding(ctx, second)
		assert.Nil(t, err)

		for id, stakeId := range map[string]string{"u1": stakeLedger.StakeIdForDeposit(txHash1), "u2": second.StakeId} {
			_, err := store.CreatePendingUnstake(ctx, &stakeLedger.PendingUnstake{
				Id:      id,
				StakeId: stakeId,
				Wallet:  walletA,
				Token:   stakeLedger.TokenClass_Primary,
				Amount:  uint256.NewInt(100),
			})
			assert.Nil(t, err)
		}

		returnTx := "0x3333333333333333333333333333333333333333333333333333333333333333"
		res, err := store.RecordFunding(ctx, &stakeLedger.FundingRecord{
			TxHash:             returnTx,
			Kind:               stakeLedger.FundingKind_UnstakeReturn,
			Wallet:             walletA,
			Token:              stakeLedger.TokenClass_Primary,
			Amount:             uint256.NewInt(100),
			ReturnedUnstakeIds: []string{"u1"},
		})
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Created, res)

		pending, err := store.ListPendingUnstakes(ctx, stakeLedger.WithdrawalStatus_Pending)
		assert.Nil(t, err)
		assert.Len(t, pending, 1)
		assert.Equal(t, "u2", pending[0].Id)
	})
}
