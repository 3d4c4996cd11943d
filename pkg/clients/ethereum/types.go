package ethereum

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EthereumHexString is a quoted hex quantity as returned by JSON-RPC.
type EthereumHexString string

func (h EthereumHexString) Value() uint64 {
	v, err := hexutil.DecodeUint64(string(h))
	if err != nil {
		return 0
	}
	return v
}

type EthereumEventLog struct {
	Address          string            `json:"address"`
	Topics           []string          `json:"topics"`
	Data             string            `json:"data"`
	LogIndex         EthereumHexString `json:"logIndex"`
	TransactionHash  string            `json:"transactionHash"`
	TransactionIndex EthereumHexString `json:"transactionIndex"`
	BlockNumber      EthereumHexString `json:"blockNumber"`
}

type EthereumTransactionReceipt struct {
	TransactionHash  string              `json:"transactionHash"`
	TransactionIndex EthereumHexString   `json:"transactionIndex"`
	BlockHash        string              `json:"blockHash"`
	BlockNumber      EthereumHexString   `json:"blockNumber"`
	From             string              `json:"from"`
	To               string              `json:"to"`
	GasUsed          EthereumHexString   `json:"gasUsed"`
	Status           EthereumHexString   `json:"status"`
	Logs             []*EthereumEventLog `json:"logs"`
}

func (r *EthereumTransactionReceipt) Succeeded() bool {
	return r.Status.Value() == 1
}

func (r *EthereumTransactionReceipt) GetTransactionHash() string {
	return strings.ToLower(r.TransactionHash)
}

// isNullResult reports a JSON-RPC null result, e.g. a receipt for a transaction that is not mined yet.
func isNullResult(res json.RawMessage) bool {
	s := strings.TrimSpace(string(res))
	return s == "" || s == "null"
}
