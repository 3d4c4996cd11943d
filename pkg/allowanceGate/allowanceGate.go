package allowanceGate

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/tokenChain"
	"github.com/inclawbate/staking-engine/pkg/txConfirmer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient operator balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance for batch transfer")
)

// Preflight is the balance and allowance read before a batch transfer.
type Preflight struct {
	Balance   *uint256.Int
	Allowance *uint256.Int
	// ApprovalTx is set when an approval had to be submitted.
	ApprovalTx string
}

type AllowanceGate struct {
	chain     tokenChain.IChain
	confirmer *txConfirmer.Confirmer
	logger    *zap.Logger
}

func NewAllowanceGate(chain tokenChain.IChain, confirmer *txConfirmer.Confirmer, l *zap.Logger) *AllowanceGate {
	return &AllowanceGate{
		chain:     chain,
		confirmer: confirmer,
		logger:    l,
	}
}

// Read fetches the operator's balance and its allowance to the batch executor concurrently.
func (g *AllowanceGate) Read(ctx context.Context, token string) (*uint256.Int, *uint256.Int, error) {
	var balance, allowance *uint256.Int
	operator := g.chain.OperatorAddress()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := g.chain.BalanceOf(egCtx, token, operator)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		balance = b
		return nil
	})
	eg.Go(func() error {
		a, err := g.chain.Allowance(egCtx, token, operator, g.chain.DisperseAddress())
		if err != nil {
			return fmt.Errorf("failed to read allowance: %w", err)
		}
		allowance = a
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return balance, allowance, nil
}

// Ensure checks, in order, that the operator holds total and that the executor may spend total.
// An insufficient balance fails before any transaction. An insufficient allowance submits an
// approval for total and waits for it; only a confirmed approval lets the batch proceed.
func (g *AllowanceGate) Ensure(ctx context.Context, token string, total *uint256.Int) (*Preflight, error) {
	if total == nil || total.IsZero() {
		return nil, fmt.Errorf("batch total must be positive")
	}
	balance, allowance, err := g.Read(ctx, token)
	if err != nil {
		return nil, err
	}
	preflight := &Preflight{Balance: balance, Allowance: allowance}

	if balance.Lt(total) {
		g.logger.Sugar().Errorw("Operator balance too low for batch",
			zap.String("token", token),
			zap.String("balance", balance.Dec()),
			zap.String("required", total.Dec()),
		)
		return preflight, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), total.Dec())
	}
	if !allowance.Lt(total) {
		return preflight, nil
	}

	g.logger.Sugar().Infow("Allowance below batch total, approving",
		zap.String("token", token),
		zap.String("allowance", allowance.Dec()),
		zap.String("required", total.Dec()),
	)
	txHash, err := g.chain.Approve(ctx, token, g.chain.DisperseAddress(), total)
	if txHash == "" && err != nil {
		return preflight, fmt.Errorf("%w: approval rejected: %v", ErrInsufficientAllowance, err)
	}
	preflight.ApprovalTx = txHash

	_, _, err = g.confirmer.Await(ctx, txHash, "approve")
	if err != nil {
		return preflight, fmt.Errorf("%w: approval %s not confirmed: %w", ErrInsufficientAllowance, txHash, err)
	}
	preflight.Allowance = new(uint256.Int).Set(total)
	return preflight, nil
}
