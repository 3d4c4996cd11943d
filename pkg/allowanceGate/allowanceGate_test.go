package allowanceGate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/metrics"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	operator = "0x91b5c0d07859cfeafeb67d9694121cd741f049bd"
	disperse = "0xd152f549545093347a162dce210e7293f1452150"
	token    = "0xa1f72459dfa10bad200ac160ecd78c6b77a747be"
)

func setup() (*AllowanceGate, *tokenChain.MockChain) {
	chain := tokenChain.NewMockChain(operator, disperse)
	confirmer := txConfirmer.NewConfirmer(chain, txConfirmer.RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond}, metrics.NewNoopMetricsSink(), zap.NewNop())
	return NewAllowanceGate(chain, confirmer, zap.NewNop()), chain
}

func Test_AllowanceGate(t *testing.T) {
	total := uint256.NewInt(1000)

	t.Run("Should fail on insufficient balance without any transaction", func(t *testing.T) {
		g, chain := setup()
		chain.SetBalance(token, operator, uint256.NewInt(999))

		_, err := g.Ensure(context.Background(), token, total)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Len(t, chain.Submitted, 0)
	})
	t.Run("Should pass without approving when the allowance covers the total", func(t *testing.T) {
		g, chain := setup()
		chain.SetBalance(token, operator, total)
		chain.SetAllowance(token, operator, disperse, uint256.NewInt(5000))

		preflight, err := g.Ensure(context.Background(), token, total)
		assert.Nil(t, err)
		assert.Equal(t, "", preflight.ApprovalTx)
		assert.Len(t, chain.Submitted, 0)
	})
	t.Run("Should approve the total and wait for confirmation when allowance is short", func(t *testing.T) {
		g, chain := setup()
		chain.SetBalance(token, operator, total)
		chain.SetAllowance(token, operator, disperse, uint256.NewInt(10))

		preflight, err := g.Ensure(context.Background(), token, total)
		assert.Nil(t, err)
		assert.NotEmpty(t, preflight.ApprovalTx)

		approvals := chain.SubmittedOf("approve")
		assert.Len(t, approvals, 1)
		assert.Equal(t, disperse, approvals[0].Spender)
		assert.Equal(t, "1000", approvals[0].Amount.Dec())
		assert.Equal(t, 1, chain.ReceiptReads(preflight.ApprovalTx))

		a, _ := chain.Allowance(context.Background(), token, operator, disperse)
		assert.Equal(t, "1000", a.Dec())
	})
	t.Run("Should surface a reverted approval as insufficient allowance", func(t *testing.T) {
		g, chain := setup()
		chain.SetBalance(token, operator, total)
		chain.ApproveOutcome = []tokenChain.ReceiptStatus{tokenChain.ReceiptStatus_Reverted}

		_, err := g.Ensure(context.Background(), token, total)
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionReverted)
		assert.Len(t, chain.SubmittedOf("batch"), 0)
	})
	t.Run("Should surface an unconfirmed approval as a timeout", func(t *testing.T) {
		g, chain := setup()
		chain.SetBalance(token, operator, total)
		chain.ApproveOutcome = []tokenChain.ReceiptStatus{tokenChain.ReceiptStatus_Pending}

		_, err := g.Ensure(context.Background(), token, total)
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
		assert.ErrorIs(t, err, txConfirmer.ErrTransactionTimeout)
	})
	t.Run("Should fail when a read fails", func(t *testing.T) {
		g, chain := setup()
		chain.ReadErr = errors.New("rpc down")

		_, err := g.Ensure(context.Background(), token, total)
		assert.NotNil(t, err)
		assert.Len(t, chain.Submitted, 0)
	})
	t.Run("Should reject a zero total", func(t *testing.T) {
		g, _ := setup()
		_, err := g.Ensure(context.Background(), token, uint256.NewInt(0))
		assert.NotNil(t, err)
	})
}
