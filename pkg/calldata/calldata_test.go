package calldata

import (
	"encoding/hex"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

const (
	token  = "0xa1f72459dfa10bad200ac160ecd78c6b77a747be"
	alice  = "0x1111111111111111111111111111111111111111"
	bob    = "0x2222222222222222222222222222222222222222"
	carol  = "0x3333333333333333333333333333333333333333"
	spendr = "0xd152f549545093347a162dce210e7293f1452150"
)

func Test_Selectors(t *testing.T) {
	t.Run("Should match the known function selectors", func(t *testing.T) {
		assert.Equal(t, "c73a2d60", hex.EncodeToString(DisperseTokenSelector))
		assert.Equal(t, "095ea7b3", hex.EncodeToString(ApproveSelector))
		assert.Equal(t, "dd62ed3e", hex.EncodeToString(AllowanceSelector))
		assert.Equal(t, "70a08231", hex.EncodeToString(BalanceOfSelector))
		assert.Equal(t, "a9059cbb", hex.EncodeToString(TransferSelector))
	})
	t.Run("Should match the Transfer event topic", func(t *testing.T) {
		assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferEventTopic.Hex())
	})
}

func Test_Aggregate(t *testing.T) {
	t.Run("Should sum duplicate destinations in first-seen order", func(t *testing.T) {
		batch, err := Aggregate([]Payment{
			{Recipient: bob, Amount: uint256.NewInt(5)},
			{Recipient: alice, Amount: uint256.NewInt(3)},
			{Recipient: "0x2222222222222222222222222222222222222222", Amount: uint256.NewInt(2)},
			{Recipient: carol, Amount: uint256.NewInt(0)},
		})
		assert.Nil(t, err)
		assert.Equal(t, []string{bob, alice}, batch.Recipients)
		assert.Equal(t, uint64(7), batch.Amounts[0].Uint64())
		assert.Equal(t, uint64(3), batch.Amounts[1].Uint64())
		assert.Equal(t, uint64(10), batch.Total.Uint64())
	})
	t.Run("Should treat mixed-case addresses as the same destination", func(t *testing.T) {
		batch, err := Aggregate([]Payment{
			{Recipient: "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD", Amount: uint256.NewInt(1)},
			{Recipient: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd", Amount: uint256.NewInt(1)},
		})
		assert.Nil(t, err)
		assert.Equal(t, 1, batch.Len())
		assert.Equal(t, uint64(2), batch.Amounts[0].Uint64())
	})
	t.Run("Should reject invalid destinations", func(t *testing.T) {
		_, err := Aggregate([]Payment{{Recipient: "0x12", Amount: uint256.NewInt(1)}})
		assert.NotNil(t, err)
	})
	t.Run("Should preserve the sum and uniqueness for random inputs", func(t *testing.T) {
		r := rand.New(rand.NewSource(3))
		wallets := []string{alice, bob, carol, spendr, token}
		for run := 0; run < 100; run++ {
			payments := make([]Payment, 0)
			expected := uint256.NewInt(0)
			n := r.Intn(20)
			for i := 0; i < n; i++ {
				amt := uint256.NewInt(uint64(r.Int63n(1000)))
				expected.Add(expected, amt)
				payments = append(payments, Payment{Recipient: wallets[r.Intn(len(wallets))], Amount: amt})
			}
			batch, err := Aggregate(payments)
			assert.Nil(t, err)
			assert.Equal(t, len(batch.Recipients), len(batch.Amounts))
			assert.Equal(t, expected.Dec(), batch.Total.Dec())

			seen := map[string]bool{}
			sum := uint256.NewInt(0)
			for i, rcpt := range batch.Recipients {
				assert.False(t, seen[rcpt])
				seen[rcpt] = true
				assert.False(t, batch.Amounts[i].IsZero())
				sum.Add(sum, batch.Amounts[i])
			}
			assert.Equal(t, expected.Dec(), sum.Dec())
		}
	})
}

func Test_BuildDisperseToken(t *testing.T) {
	t.Run("Should encode identically to the abi packer", func(t *testing.T) {
		batch, err := Aggregate([]Payment{
			{Recipient: alice, Amount: uint256.NewInt(1000)},
			{Recipient: bob, Amount: new(uint256.Int).Lsh(uint256.NewInt(1), 200)},
			{Recipient: carol, Amount: uint256.NewInt(1)},
		})
		assert.Nil(t, err)

		data, err := BuildDisperseToken(token, batch)
		assert.Nil(t, err)

		addrType, _ := abi.NewType("address", "", nil)
		addrsType, _ := abi.NewType("address[]", "", nil)
		valuesType, _ := abi.NewType("uint256[]", "", nil)
		args := abi.Arguments{{Type: addrType}, {Type: addrsType}, {Type: valuesType}}
		packed, err := args.Pack(
			common.HexToAddress(token),
			[]common.Address{common.HexToAddress(alice), common.HexToAddress(bob), common.HexToAddress(carol)},
			[]*big.Int{big.NewInt(1000), new(big.Int).Lsh(big.NewInt(1), 200), big.NewInt(1)},
		)
		assert.Nil(t, err)
		assert.Equal(t, hex.EncodeToString(append(DisperseTokenSelector, packed...)), hex.EncodeToString(data))
	})
	t.Run("Should refuse an empty batch", func(t *testing.T) {
		_, err := BuildDisperseToken(token, &Batch{Total: uint256.NewInt(0)})
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})
	t.Run("Should refuse mismatched lengths", func(t *testing.T) {
		_, err := BuildDisperseToken(token, &Batch{Recipients: []string{alice}, Amounts: []*uint256.Int{}})
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})
}

func Test_Erc20Calls(t *testing.T) {
	t.Run("Should encode approve", func(t *testing.T) {
		data, err := BuildApprove(spendr, uint256.NewInt(255))
		assert.Nil(t, err)
		assert.Len(t, data, 68)
		assert.Equal(t, "095ea7b3", hex.EncodeToString(data[:4]))
		assert.Equal(t, byte(255), data[67])
	})
	t.Run("Should encode allowance with owner before spender", func(t *testing.T) {
		data, err := BuildAllowance(alice, spendr)
		assert.Nil(t, err)
		assert.Equal(t, common.HexToAddress(alice).Bytes(), data[16:36])
		assert.Equal(t, common.HexToAddress(spendr).Bytes(), data[48:68])
	})
	t.Run("Should encode balanceOf and transfer", func(t *testing.T) {
		data, err := BuildBalanceOf(alice)
		assert.Nil(t, err)
		assert.Len(t, data, 36)

		data, err = BuildTransfer(bob, uint256.NewInt(9))
		assert.Nil(t, err)
		assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	})
	t.Run("Should decode a Transfer log", func(t *testing.T) {
		amount := EncodeUint64(42)
		from, to, v, err := DecodeTransferLog([]string{
			TransferEventTopic.Hex(),
			common.BytesToHash(common.HexToAddress(alice).Bytes()).Hex(),
			common.BytesToHash(common.HexToAddress(bob).Bytes()).Hex(),
		}, amount)
		assert.Nil(t, err)
		assert.Equal(t, alice, from)
		assert.Equal(t, bob, to)
		assert.Equal(t, uint64(42), v.Uint64())
	})
}
