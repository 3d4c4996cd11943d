package tokenChain

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/tests"
	"github.com/inclawbate/staking-engine/pkg/calldata"
	"github.com/inclawbate/staking-engine/pkg/clients/ethereum"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	rpcUrl      = "https://rpc.test"
	testKey     = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testAddress = "0x71562b71999873db5b286df957af199ec94617f7"
	tokenAddr   = "0xa1f72459dfa10bad200ac160ecd78c6b77a747be"
	disperse    = "0xd152f549545093347a162dce210e7293f1452150"
	poolWallet  = "0x91b5c0d07859cfeafeb67d9694121cd741f049bd"
	staker      = "0x1111111111111111111111111111111111111111"
)

func setup(t *testing.T) *EthChain {
	client := ethereum.NewClient(&ethereum.EthereumClientConfig{
		BaseUrls: []string{rpcUrl},
		ChainId:  8453,
		Backoffs: []time.Duration{time.Millisecond},
	}, zap.NewNop())
	client.SetHttpClient(&http.Client{Transport: httpmock.DefaultTransport})

	chain, err := NewEthChain(&EthChainConfig{
		ChainId:         8453,
		OperatorKey:     testKey,
		DisperseAddress: disperse,
	}, client, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return chain
}

func Test_EthChain(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("Should derive the operator address from the key", func(t *testing.T) {
		chain := setup(t)
		assert.Equal(t, testAddress, chain.OperatorAddress())
		assert.Equal(t, disperse, chain.DisperseAddress())
	})
	t.Run("Should read balances through eth_call", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_call": `"0x0000000000000000000000000000000000000000000000000de0b6b3a7640000"`,
		}))
		chain := setup(t)
		b, err := chain.BalanceOf(context.Background(), tokenAddr, staker)
		assert.Nil(t, err)
		assert.Equal(t, "1000000000000000000", b.Dec())
	})
	t.Run("Should sign and broadcast a batch transfer", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionCount":  `"0x7"`,
			"eth_estimateGas":          `"0x186a0"`,
			"eth_gasPrice":             `"0x3b9aca00"`,
			"eth_maxPriorityFeePerGas": `"0x1"`,
			"eth_sendRawTransaction":   `"0x0000000000000000000000000000000000000000000000000000000000000001"`,
		}))
		chain := setup(t)
		batch, _ := calldata.Aggregate([]calldata.Payment{{Recipient: staker, Amount: uint256.NewInt(5)}})
		h, err := chain.SubmitBatchTransfer(context.Background(), tokenAddr, batch)
		assert.Nil(t, err)
		assert.Len(t, h, 66)
	})
	t.Run("Should return no hash when the node rejects the transaction", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionCount":  `"0x7"`,
			"eth_estimateGas":          `"0x186a0"`,
			"eth_gasPrice":             `"0x3b9aca00"`,
			"eth_maxPriorityFeePerGas": `"0x1"`,
		}))
		chain := setup(t)
		h, err := chain.Approve(context.Background(), tokenAddr, disperse, uint256.NewInt(10))
		assert.NotNil(t, err)
		assert.NotErrorIs(t, err, ErrBroadcastUncertain)
		assert.Equal(t, "", h)
	})
	t.Run("Should map receipts to statuses", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionReceipt": `{"transactionHash":"0xaa","blockNumber":"0x1","status":"0x0","logs":[]}`,
		}))
		chain := setup(t)
		r, err := chain.GetReceipt(context.Background(), "0xaa")
		assert.Nil(t, err)
		assert.Equal(t, ReceiptStatus_Reverted, r.Status)

		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionReceipt": `null`,
		}))
		r, err = chain.GetReceipt(context.Background(), "0xaa")
		assert.Nil(t, err)
		assert.Equal(t, ReceiptStatus_Pending, r.Status)
	})
	t.Run("Should decode transfer logs from a receipt", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", rpcUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionReceipt": `{"transactionHash":"0xbb","blockNumber":"0x1","status":"0x1","logs":[
				{"address":"0xA1F72459DFA10BAD200AC160ECD78C6B77A747BE","topics":[
					"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
					"0x0000000000000000000000001111111111111111111111111111111111111111",
					"0x00000000000000000000000091b5c0d07859cfeafeb67d9694121cd741f049bd"],
				 "data":"0x00000000000000000000000000000000000000000000000000000000000003e8"},
				{"address":"0xa1f72459dfa10bad200ac160ecd78c6b77a747be","topics":["0x01"],"data":"0x"}
			]}`,
		}))
		chain := setup(t)
		logs, err := chain.TransferLogs(context.Background(), "0xbb")
		assert.Nil(t, err)
		assert.Len(t, logs, 1)
		assert.Equal(t, tokenAddr, logs[0].Token)
		assert.Equal(t, staker, logs[0].From)
		assert.Equal(t, poolWallet, logs[0].To)
		assert.Equal(t, uint64(1000), logs[0].Amount.Uint64())
	})
}
