package ethereum

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/inclawbate/staking-engine/internal/tests"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	primaryUrl  = "https://rpc-primary.test"
	fallbackUrl = "https://rpc-fallback.test"
)

func setup(urls ...string) *Client {
	c := NewClient(&EthereumClientConfig{
		BaseUrls: urls,
		ChainId:  8453,
		Backoffs: []time.Duration{time.Millisecond, time.Millisecond},
	}, zap.NewNop())
	c.SetHttpClient(&http.Client{
		Transport: httpmock.DefaultTransport,
	})
	return c
}

func Test_EthereumClient(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	t.Run("Should fall through to the next url when rate limited", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, httpmock.NewStringResponder(429, "slow down"))
		httpmock.RegisterResponder("POST", fallbackUrl, tests.RpcResponder(map[string]string{
			"eth_blockNumber": `"0x10"`,
		}))

		c := setup(primaryUrl, fallbackUrl)
		n, err := c.GetBlockNumber(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(16), n)
		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST "+primaryUrl])
	})
	t.Run("Should not retry an rpc error", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, tests.RpcResponder(map[string]string{}))
		httpmock.RegisterResponder("POST", fallbackUrl, tests.RpcResponder(map[string]string{}))

		c := setup(primaryUrl, fallbackUrl)
		_, err := c.GetBlockNumber(context.Background())
		var rpcErr *RPCError
		assert.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, int64(-32601), rpcErr.Code)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})
	t.Run("Should give up after the configured backoffs", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, httpmock.NewStringResponder(502, "bad gateway"))

		c := setup(primaryUrl)
		_, err := c.GetBlockNumber(context.Background())
		assert.NotNil(t, err)
		assert.Equal(t, 2, httpmock.GetTotalCallCount())
	})
	t.Run("Should return a nil receipt for an unmined transaction", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionReceipt": `null`,
		}))

		c := setup(primaryUrl)
		r, err := c.GetTransactionReceipt(context.Background(), "0xabc")
		assert.Nil(t, err)
		assert.Nil(t, r)
	})
	t.Run("Should parse a mined receipt", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, tests.RpcResponder(map[string]string{
			"eth_getTransactionReceipt": `{"transactionHash":"0xABC","blockNumber":"0x2a","status":"0x1","logs":[{"address":"0xa1f72459dfa10bad200ac160ecd78c6b77a747be","topics":["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],"data":"0x01"}]}`,
		}))

		c := setup(primaryUrl)
		r, err := c.GetTransactionReceipt(context.Background(), "0xabc")
		assert.Nil(t, err)
		assert.True(t, r.Succeeded())
		assert.Equal(t, uint64(42), r.BlockNumber.Value())
		assert.Equal(t, "0xabc", r.GetTransactionHash())
		assert.Len(t, r.Logs, 1)
	})
	t.Run("Should decode eth_call return data", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, tests.RpcResponder(map[string]string{
			"eth_call": `"0x00000000000000000000000000000000000000000000000000000000000003e8"`,
		}))

		c := setup(primaryUrl)
		data, err := c.EthCall(context.Background(), "0xa1f72459dfa10bad200ac160ecd78c6b77a747be", []byte{0x70, 0xa0, 0x82, 0x31})
		assert.Nil(t, err)
		assert.Len(t, data, 32)
		assert.Equal(t, byte(0xe8), data[31])
	})
	t.Run("Should send a raw transaction exactly once", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", primaryUrl, httpmock.NewStringResponder(503, "unavailable"))

		c := setup(primaryUrl)
		_, err := c.SendRawTransaction(context.Background(), []byte{0x01})
		assert.NotNil(t, err)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})
}
