package tokenChain

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/calldata"
)

// ErrBroadcastUncertain is returned with the transaction hash when a signed transaction may or
// may not have reached the network. The hash must be resolved through its receipt, never resubmitted.
var ErrBroadcastUncertain = errors.New("transaction broadcast outcome unknown")

type ReceiptStatus string

const (
	ReceiptStatus_Pending  ReceiptStatus = "pending"
	ReceiptStatus_Success  ReceiptStatus = "success"
	ReceiptStatus_Reverted ReceiptStatus = "reverted"
)

type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
}

// TransferLog is a decoded ERC-20 Transfer event. Addresses are lower-case.
type TransferLog struct {
	Token  string
	From   string
	To     string
	Amount *uint256.Int
}

// IReceiptReader is the read side used to resolve transaction outcomes.
type IReceiptReader interface {
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// IChain is the engine's view of the token contracts and the batch-transfer executor.
// Write methods return the submitted transaction hash without waiting for inclusion.
type IChain interface {
	IReceiptReader

	OperatorAddress() string
	DisperseAddress() string

	BalanceOf(ctx context.Context, token string, owner string) (*uint256.Int, error)
	Allowance(ctx context.Context, token string, owner string, spender string) (*uint256.Int, error)
	Approve(ctx context.Context, token string, spender string, amount *uint256.Int) (string, error)
	SubmitBatchTransfer(ctx context.Context, token string, batch *calldata.Batch) (string, error)
	TransferLogs(ctx context.Context, txHash string) ([]*TransferLog, error)
}
