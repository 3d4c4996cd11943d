package tokenChain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/calldata"
	"github.com/inclawbate/staking-engine/pkg/clients/ethereum"
	"go.uber.org/zap"
)

// gasHeadroomPct is added on top of eth_estimateGas.
const gasHeadroomPct = 20

type EthChainConfig struct {
	ChainId         uint64
	OperatorKey     string
	DisperseAddress string
}

// EthChain signs operator transactions locally and talks to the node over JSON-RPC.
type EthChain struct {
	client   *ethereum.Client
	key      *ecdsa.PrivateKey
	operator string
	disperse string
	signer   types.Signer
	logger   *zap.Logger

	// sends are serialized so nonces are taken in order
	sendLock sync.Mutex
}

func NewEthChain(cfg *EthChainConfig, client *ethereum.Client, l *zap.Logger) (*EthChain, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	operator := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	return &EthChain{
		client:   client,
		key:      key,
		operator: operator,
		disperse: strings.ToLower(cfg.DisperseAddress),
		signer:   types.LatestSignerForChainID(new(big.Int).SetUint64(cfg.ChainId)),
		logger:   l,
	}, nil
}

func (e *EthChain) OperatorAddress() string {
	return e.operator
}

func (e *EthChain) DisperseAddress() string {
	return e.disperse
}

func (e *EthChain) readUint256(ctx context.Context, token string, data []byte) (*uint256.Int, error) {
	res, err := e.client.EthCall(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return calldata.DecodeUint256(res)
}

func (e *EthChain) BalanceOf(ctx context.Context, token string, owner string) (*uint256.Int, error) {
	data, err := calldata.BuildBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	return e.readUint256(ctx, token, data)
}

func (e *EthChain) Allowance(ctx context.Context, token string, owner string, spender string) (*uint256.Int, error) {
	data, err := calldata.BuildAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	return e.readUint256(ctx, token, data)
}

func (e *EthChain) Approve(ctx context.Context, token string, spender string, amount *uint256.Int) (string, error) {
	data, err := calldata.BuildApprove(spender, amount)
	if err != nil {
		return "", err
	}
	return e.send(ctx, token, data)
}

func (e *EthChain) SubmitBatchTransfer(ctx context.Context, token string, batch *calldata.Batch) (string, error) {
	data, err := calldata.BuildDisperseToken(token, batch)
	if err != nil {
		return "", err
	}
	return e.send(ctx, e.disperse, data)
}

// send builds, signs and broadcasts a dynamic fee transaction. The hash is derived locally, so it
// is returned even when the broadcast response is lost.
func (e *EthChain) send(ctx context.Context, to string, data []byte) (string, error) {
	e.sendLock.Lock()
	defer e.sendLock.Unlock()

	nonce, err := e.client.GetPendingNonce(ctx, e.operator)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gas, err := e.client.EstimateGas(ctx, e.operator, to, data)
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas = gas + gas*gasHeadroomPct/100

	gasPrice, err := e.client.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}
	tip, err := e.client.MaxPriorityFeePerGas(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get priority fee: %w", err)
	}
	feeCap := new(big.Int).Mul(gasPrice, big.NewInt(2))
	if feeCap.Cmp(tip) < 0 {
		feeCap = new(big.Int).Set(tip)
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &toAddr,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, e.signer, e.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	txHash := strings.ToLower(signed.Hash().Hex())

	e.logger.Sugar().Infow("Submitting transaction",
		zap.String("txHash", txHash),
		zap.String("to", to),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	if _, err := e.client.SendRawTransaction(ctx, raw); err != nil {
		var rpcErr *ethereum.RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("broadcast rejected: %w", err)
		}
		return txHash, fmt.Errorf("%w %s: %v", ErrBroadcastUncertain, txHash, err)
	}
	return txHash, nil
}

func (e *EthChain) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	r, err := e.client.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return &Receipt{TxHash: txHash, Status: ReceiptStatus_Pending}, nil
	}
	status := ReceiptStatus_Reverted
	if r.Succeeded() {
		status = ReceiptStatus_Success
	}
	return &Receipt{
		TxHash:      r.GetTransactionHash(),
		Status:      status,
		BlockNumber: r.BlockNumber.Value(),
	}, nil
}

// TransferLogs decodes every ERC-20 Transfer event of a mined, successful transaction.
func (e *EthChain) TransferLogs(ctx context.Context, txHash string) ([]*TransferLog, error) {
	r, err := e.client.GetTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if r == nil || !r.Succeeded() {
		return nil, fmt.Errorf("transaction %s is not a successful mined transaction", txHash)
	}
	logs := make([]*TransferLog, 0)
	for _, l := range r.Logs {
		data, err := hexutil.Decode(l.Data)
		if err != nil {
			continue
		}
		from, to, amount, err := calldata.DecodeTransferLog(l.Topics, data)
		if err != nil {
			continue
		}
		logs = append(logs, &TransferLog{
			Token:  strings.ToLower(l.Address),
			From:   from,
			To:     to,
			Amount: amount,
		})
	}
	return logs, nil
}
