package staking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/pkg/eventBus"
	"github.com/inclawbate/staking-engine/pkg/eventBus/eventBusTypes"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery/levelPendingStore"
	"github.com/inclawbate/staking-engine/pkg/settlement"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger/memoryLedgerStore"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"github.com/stretchr/testify/assert"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"
)

const (
	wallet       = "0xaaaa000000000000000000000000000000000001"
	otherWallet  = "0xbbbb000000000000000000000000000000000002"
	operator     = "0x91b5c0d07859cfeafeb67d9694121cd741f049bd"
	disperse     = "0xd152f549545093347a162dce210e7293f1452150"
	primaryToken = "0xa1f72459dfa10bad200ac160ecd78c6b77a747be"
	boostedToken = "0xc0ffee0000000000000000000000000000000003"
	depositTx    = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

// flakyLogs fails the next logFailures TransferLogs reads.
type flakyLogs struct {
	*tokenChain.MockChain
	logFailures int
}

func (f *flakyLogs) TransferLogs(ctx context.Context, txHash string) ([]*tokenChain.TransferLog, error) {
	if f.logFailures > 0 {
		f.logFailures--
		return nil, errors.New("rpc: connection reset")
	}
	return f.MockChain.TransferLogs(ctx, txHash)
}

type fixture struct {
	ledger     *memoryLedgerStore.MemoryLedgerStore
	store      *levelPendingStore.LevelPendingStore
	chain      *tokenChain.MockChain
	logs       *flakyLogs
	bus        *eventBus.EventBus
	reconciler *pendingRecovery.Reconciler
	staker     *Staker
}

func setup(t *testing.T) *fixture {
	l := zap.NewNop()
	ms := metrics.NewNoopMetricsSink()
	ledger := memoryLedgerStore.NewMemoryLedgerStore(l)
	store, err := levelPendingStore.NewLevelPendingStoreWithStorage(storage.NewMemStorage(), l)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	chain := tokenChain.NewMockChain(operator, disperse)
	logs := &flakyLogs{MockChain: chain}
	confirmer := txConfirmer.NewConfirmer(chain, txConfirmer.RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond}, ms, l)
	recorder := pendingRecovery.NewRecorder(ledger, store, &pendingRecovery.RecorderConfig{MaxRetries: 2, BaseBackoff: time.Millisecond}, ms, l)
	reconciler := pendingRecovery.NewReconciler(store, chain, recorder, pendingRecovery.DefaultCutoff, ms, l)
	bus := eventBus.NewEventBus(l)

	staker := NewStaker(&StakingConfig{
		TokenAddresses: map[stakeLedger.TokenClass]string{
			stakeLedger.TokenClass_Primary: primaryToken,
			stakeLedger.TokenClass_Boosted: boostedToken,
		},
		PoolWallet: operator,
	}, ledger, logs, confirmer, recorder, bus, l)
	reconciler.SetVerifier(stakeLedger.FundingKind_Deposit, staker.VerifyDeposit)

	return &fixture{ledger: ledger, store: store, chain: chain, logs: logs, bus: bus, reconciler: reconciler, staker: staker}
}

func request(amount uint64) *DepositRequest {
	return &DepositRequest{
		TxHash: depositTx,
		Wallet: wallet,
		Token:  stakeLedger.TokenClass_Primary,
		Amount: uint256.NewInt(amount),
		Policy: stakeLedger.KeepPolicy(),
	}
}

func Test_Staker(t *testing.T) {
	t.Run("Should stake a verified deposit", func(t *testing.T) {
		f := setup(t)
		events := make(chan *eventBusTypes.Event, 4)
		f.bus.Subscribe(&eventBusTypes.Consumer{Id: "test", Context: context.Background(), Channel: events})
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(500),
		})

		result, err := f.staker.Stake(context.Background(), request(500))
		assert.Nil(t, err)
		assert.Equal(t, settlement.Status_Recorded, result.Status)
		assert.Equal(t, stakeLedger.RecordResult_Created, result.Result)
		assert.Equal(t, stakeLedger.StakeIdForDeposit(depositTx), result.StakeId)

		stakes, _ := f.ledger.ListStakes(context.Background(), wallet)
		assert.Len(t, stakes, 1)
		assert.Equal(t, "500", stakes[0].Amount.Dec())

		pending, _ := f.store.List()
		assert.Len(t, pending, 0)

		select {
		case e := <-events:
			assert.Equal(t, eventBusTypes.Event_DepositStaked, e.Name)
		case <-time.After(time.Second):
			t.Fatal("expected a deposit event")
		}
	})
	t.Run("Should return the existing stake for a repeated tx hash", func(t *testing.T) {
		f := setup(t)
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(500),
		})
		_, err := f.staker.Stake(context.Background(), request(500))
		assert.Nil(t, err)
		reads := f.chain.ReceiptReads(depositTx)

		result, err := f.staker.Stake(context.Background(), request(500))
		assert.Nil(t, err)
		assert.Equal(t, stakeLedger.RecordResult_Duplicate, result.Result)
		assert.Equal(t, reads, f.chain.ReceiptReads(depositTx))
		assert.Len(t, f.ledger.FundingRecords(), 1)
	})
	t.Run("Should reject a deposit whose transferred amount differs from the claim", func(t *testing.T) {
		f := setup(t)
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(499),
		})

		_, err := f.staker.Stake(context.Background(), request(500))
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidDeposit)
		assert.Len(t, f.ledger.FundingRecords(), 0)

		pending, _ := f.store.List()
		assert.Len(t, pending, 0)
	})
	t.Run("Should reject a transfer sent by another wallet", func(t *testing.T) {
		f := setup(t)
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: otherWallet, To: operator, Amount: uint256.NewInt(500),
		})

		_, err := f.staker.Stake(context.Background(), request(500))
		assert.ErrorIs(t, err, ErrNoMatchingTransfer)
	})
	t.Run("Should reject a transfer of the other token class", func(t *testing.T) {
		f := setup(t)
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: boostedToken, From: wallet, To: operator, Amount: uint256.NewInt(500),
		})

		_, err := f.staker.Stake(context.Background(), request(500))
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidDeposit)
	})
	t.Run("Should reject a reverted deposit transaction", func(t *testing.T) {
		f := setup(t)
		f.chain.ScriptReceipt(depositTx, tokenChain.ReceiptStatus_Reverted)

		result, err := f.staker.Stake(context.Background(), request(500))
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidDeposit)
		assert.Equal(t, settlement.Status_Reverted, result.Status)

		pending, _ := f.store.List()
		assert.Len(t, pending, 0)
	})
	t.Run("Should leave an unconfirmed deposit to the recovery sweep", func(t *testing.T) {
		f := setup(t)

		result, err := f.staker.Stake(context.Background(), request(500))
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionTimeout)
		assert.Equal(t, settlement.Status_Pending, result.Status)

		pending, _ := f.store.List()
		assert.Len(t, pending, 1)

		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(500),
		})
		f.chain.ScriptReceipt(depositTx, tokenChain.ReceiptStatus_Success)
		sweep, err := f.reconciler.Sweep(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, sweep.Recorded)

		stakes, _ := f.ledger.ListStakes(context.Background(), wallet)
		assert.Len(t, stakes, 1)
	})
	t.Run("Should keep a confirmed deposit pending when its logs cannot be read", func(t *testing.T) {
		f := setup(t)
		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(100),
		})
		f.logs.logFailures = 1

		result, err := f.staker.Stake(context.Background(), request(100))
		assert.Nil(t, err)
		assert.Equal(t, settlement.Status_Reconciling, result.Status)

		pending, _ := f.store.List()
		assert.Len(t, pending, 1)

		sweep, err := f.reconciler.Sweep(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, sweep.Recorded)
		record, _ := f.ledger.GetFundingRecord(context.Background(), depositTx)
		assert.NotNil(t, record)
	})
	t.Run("Should leave a deposit pending when a sweep cannot read its logs", func(t *testing.T) {
		f := setup(t)
		_, err := f.staker.Stake(context.Background(), request(100))
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionTimeout)

		f.chain.AddTransferLog(depositTx, &tokenChain.TransferLog{
			Token: primaryToken, From: wallet, To: operator, Amount: uint256.NewInt(100),
		})
		f.chain.ScriptReceipt(depositTx, tokenChain.ReceiptStatus_Success)
		f.logs.logFailures = 1

		sweep, err := f.reconciler.Sweep(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 0, sweep.Rejected)
		assert.Equal(t, 1, sweep.Pending)

		sweep, err = f.reconciler.Sweep(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, sweep.Recorded)
		stakes, _ := f.ledger.ListStakes(context.Background(), wallet)
		assert.Len(t, stakes, 1)
	})
	t.Run("Should keep the first tracking time when a deposit is retried", func(t *testing.T) {
		f := setup(t)
		first := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		f.staker.SetTimeNowFn(func() time.Time { return first })
		_, err := f.staker.Stake(context.Background(), request(100))
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionTimeout)

		f.staker.SetTimeNowFn(func() time.Time { return first.Add(20 * time.Hour) })
		_, err = f.staker.Stake(context.Background(), request(100))
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionTimeout)

		entry, err := f.store.Get(depositTx)
		assert.Nil(t, err)
		assert.True(t, first.Equal(entry.CreatedAt))
	})
	t.Run("Should validate the request before touching the chain", func(t *testing.T) {
		f := setup(t)

		bad := request(500)
		bad.TxHash = "0x1234"
		_, err := f.staker.Stake(context.Background(), bad)
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidDeposit)

		zero := request(0)
		_, err = f.staker.Stake(context.Background(), zero)
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidAmount)

		class := request(500)
		class.Token = "gold"
		_, err = f.staker.Stake(context.Background(), class)
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidTokenClass)

		split := request(500)
		split.Policy = stakeLedger.SplitPolicy(50, 10, 10, "")
		_, err = f.staker.Stake(context.Background(), split)
		assert.ErrorIs(t, err, stakeLedger.ErrInvalidSplit)

		assert.Equal(t, 0, f.chain.ReceiptReads(depositTx))
	})
}
