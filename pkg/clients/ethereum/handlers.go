package ethereum

import (
	"encoding/json"
	"strings"
	"time"
)

type ResponseParserFunc[T any] func(res json.RawMessage) (T, error)

type RequestResponseHandler[T any] struct {
	RequestMethod  *RequestMethod
	ResponseParser ResponseParserFunc[T]
}

func parseHexString(res json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(res, &s); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

var (
	RPCMethod_GetBlock = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_blockNumber",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_chainId = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_chainId",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_getTransactionReceipt = &RequestResponseHandler[*EthereumTransactionReceipt]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getTransactionReceipt",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumTransactionReceipt, error) {
			if isNullResult(res) {
				return nil, nil
			}
			receipt := &EthereumTransactionReceipt{}

			if err := json.Unmarshal(res, receipt); err != nil {
				return nil, err
			}
			return receipt, nil
		},
	}
	RPCMethod_call = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_call",
			Timeout: time.Second * 10,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_getTransactionCount = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getTransactionCount",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_estimateGas = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_estimateGas",
			Timeout: time.Second * 10,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_gasPrice = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_gasPrice",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_maxPriorityFeePerGas = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_maxPriorityFeePerGas",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_sendRawTransaction = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_sendRawTransaction",
			Timeout: time.Second * 15,
		},
		ResponseParser: parseHexString,
	}
)

// CallMsg is the transaction object accepted by eth_call and eth_estimateGas.
type CallMsg struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

func GetBlockRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_GetBlock.RequestMethod.Name,
		ID:      id,
	}
}

func GetChainIdRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_chainId.RequestMethod.Name,
		ID:      id,
	}
}

func GetTransactionReceiptRequest(txHash string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getTransactionReceipt.RequestMethod.Name,
		Params:  []interface{}{txHash},
		ID:      id,
	}
}

// Block can be a hex block number, "latest", "safe", "finalized" or "pending".
func CallRequest(msg *CallMsg, block string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_call.RequestMethod.Name,
		Params:  []interface{}{msg, block},
		ID:      id,
	}
}

func GetTransactionCountRequest(address string, block string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getTransactionCount.RequestMethod.Name,
		Params:  []interface{}{address, block},
		ID:      id,
	}
}

func EstimateGasRequest(msg *CallMsg, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_estimateGas.RequestMethod.Name,
		Params:  []interface{}{msg},
		ID:      id,
	}
}

func GasPriceRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_gasPrice.RequestMethod.Name,
		ID:      id,
	}
}

func MaxPriorityFeePerGasRequest(id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_maxPriorityFeePerGas.RequestMethod.Name,
		ID:      id,
	}
}

func SendRawTransactionRequest(rawTx string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_sendRawTransaction.RequestMethod.Name,
		Params:  []interface{}{rawTx},
		ID:      id,
	}
}
