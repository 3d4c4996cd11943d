package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/inclawbate/staking-engine/internal/config"
	"go.uber.org/zap"
)

type RequestMethod struct {
	Name    string
	Timeout time.Duration
}

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var jsonRPCVersion = "2.0"

var ErrRateLimited = errors.New("rpc endpoint rate limited")

var defaultBackoffs = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	clientConfig *EthereumClientConfig
}

type EthereumClientConfig struct {
	// BaseUrls are tried in order on every attempt; a rate limited or unreachable url falls through to the next.
	BaseUrls []string
	ChainId  uint64
	// Backoffs between full passes over BaseUrls. Defaults to 1s..60s.
	Backoffs []time.Duration
}

func ConvertGlobalConfigToEthereumConfig(cfg *config.EthereumRpcConfig) *EthereumClientConfig {
	return &EthereumClientConfig{
		BaseUrls: cfg.BaseUrls,
		ChainId:  cfg.ChainId,
	}
}

func NewClient(cfg *EthereumClientConfig, l *zap.Logger) *Client {
	client := &http.Client{
		Timeout: time.Second * 10,
	}
	if cfg.Backoffs == nil {
		cfg.Backoffs = defaultBackoffs
	}

	l.Sugar().Infow("Creating new Ethereum client",
		zap.Int("urls", len(cfg.BaseUrls)),
		zap.Uint64("chainId", cfg.ChainId),
	)

	return &Client{
		httpClient:   client,
		Logger:       l,
		clientConfig: cfg,
	}
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ChainId() uint64 {
	return c.clientConfig.ChainId
}

func decodeQuantity(s string) (*big.Int, error) {
	return hexutil.DecodeBig(s)
}

func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetBlockRequest(1))
	if err != nil {
		return 0, err
	}
	blockNumber, err := RPCMethod_GetBlock.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(blockNumber)
}

func (c *Client) GetChainId(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, GetChainIdRequest(1))
	if err != nil {
		return 0, err
	}
	chainId, err := RPCMethod_chainId.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(chainId)
}

// GetTransactionReceipt returns nil with no error while the transaction is not mined.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*EthereumTransactionReceipt, error) {
	rpcRequest := GetTransactionReceiptRequest(txHash, 1)

	res, err := c.Call(ctx, rpcRequest)
	if err != nil {
		return nil, err
	}
	txReceipt, err := RPCMethod_getTransactionReceipt.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse transaction receipt",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, err
	}
	return txReceipt, nil
}

// EthCall executes a read-only call against the latest block and returns the raw return data.
func (c *Client) EthCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	res, err := c.Call(ctx, CallRequest(&CallMsg{To: to, Data: hexutil.Encode(data)}, "latest", 1))
	if err != nil {
		return nil, err
	}
	hexData, err := RPCMethod_call.ResponseParser(res.Result)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(hexData)
}

func (c *Client) GetPendingNonce(ctx context.Context, address string) (uint64, error) {
	res, err := c.Call(ctx, GetTransactionCountRequest(address, "pending", 1))
	if err != nil {
		return 0, err
	}
	nonce, err := RPCMethod_getTransactionCount.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(nonce)
}

func (c *Client) EstimateGas(ctx context.Context, from string, to string, data []byte) (uint64, error) {
	res, err := c.Call(ctx, EstimateGasRequest(&CallMsg{From: from, To: to, Data: hexutil.Encode(data)}, 1))
	if err != nil {
		return 0, err
	}
	gas, err := RPCMethod_estimateGas.ResponseParser(res.Result)
	if err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(gas)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	res, err := c.Call(ctx, GasPriceRequest(1))
	if err != nil {
		return nil, err
	}
	price, err := RPCMethod_gasPrice.ResponseParser(res.Result)
	if err != nil {
		return nil, err
	}
	return decodeQuantity(price)
}

func (c *Client) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	res, err := c.Call(ctx, MaxPriorityFeePerGasRequest(1))
	if err != nil {
		return nil, err
	}
	fee, err := RPCMethod_maxPriorityFeePerGas.ResponseParser(res.Result)
	if err != nil {
		return nil, err
	}
	return decodeQuantity(fee)
}

// SendRawTransaction broadcasts a signed transaction. It is never retried: a failed broadcast may
// still have reached the mempool, and the caller resolves that through the transaction hash.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (string, error) {
	res, err := c.callOnce(ctx, SendRawTransactionRequest(hexutil.Encode(rawTx), 1))
	if err != nil {
		return "", err
	}
	return RPCMethod_sendRawTransaction.ResponseParser(res.Result)
}

func (c *Client) call(ctx context.Context, baseUrl string, rpcRequest *RPCRequest) (*RPCResponse, error) {
	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, err
	}
	c.Logger.Sugar().Debug("Request body", zap.String("requestBody", string(requestBody)))

	ctx, cancel := context.WithTimeout(ctx, RPCMethod_call.RequestMethod.Timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, baseUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("Failed to make request %s", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("Request failed %s", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to read body %s", err)
	}
	if response.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received http error code %+v", response.StatusCode)
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %s", err)
	}

	if destination.Error != nil {
		return nil, destination.Error
	}
	return destination, nil
}

// callOnce makes a single pass over the configured urls.
func (c *Client) callOnce(ctx context.Context, rpcRequest *RPCRequest) (*RPCResponse, error) {
	if len(c.clientConfig.BaseUrls) == 0 {
		return nil, fmt.Errorf("no rpc urls configured")
	}
	var lastErr error
	for _, baseUrl := range c.clientConfig.BaseUrls {
		res, err := c.call(ctx, baseUrl, rpcRequest)
		if err == nil {
			return res, nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			// the node answered; another node will answer the same way
			return nil, err
		}
		c.Logger.Sugar().Debugw("Rpc url failed, trying next",
			zap.String("method", rpcRequest.Method),
			zap.Error(err),
		)
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) Call(ctx context.Context, rpcRequest *RPCRequest) (*RPCResponse, error) {
	for i, backoff := range c.clientConfig.Backoffs {
		res, err := c.callOnce(ctx, rpcRequest)
		if err == nil {
			if i > 0 {
				c.Logger.Sugar().Infow("Successfully called after backoff",
					zap.Duration("backoff", backoff),
					zap.Any("rpcRequest", rpcRequest),
				)
			}
			return res, nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		c.Logger.Sugar().Errorw("Failed to call",
			zap.Error(err),
			zap.Duration("backoff", backoff),
			zap.Any("rpcRequest", rpcRequest),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	c.Logger.Sugar().Errorw("Exceeded retries for Call", zap.Any("rpcRequest", rpcRequest))
	return nil, fmt.Errorf("Exceeded retries for Call")
}
