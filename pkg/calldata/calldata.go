package calldata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/internal/utils"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const wordSize = 32

var (
	ErrEmptyBatch     = errors.New("batch has no recipients")
	ErrLengthMismatch = errors.New("recipients and amounts differ in length")
)

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4:4]
}

var (
	DisperseTokenSelector = Selector("disperseToken(address,address[],uint256[])")
	ApproveSelector       = Selector("approve(address,uint256)")
	AllowanceSelector     = Selector("allowance(address,address)")
	BalanceOfSelector     = Selector("balanceOf(address)")
	TransferSelector      = Selector("transfer(address,uint256)")
)

// TransferEventTopic is keccak256("Transfer(address,address,uint256)").
var TransferEventTopic = common.BytesToHash(crypto.Keccak256([]byte("Transfer(address,address,uint256)")))

func EncodeAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), wordSize)
}

func EncodeUint256(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func EncodeUint64(v uint64) []byte {
	return EncodeUint256(uint256.NewInt(v))
}

// EncodeDynamicArray encodes a length-prefixed array of 32-byte words.
func EncodeDynamicArray(words [][]byte) []byte {
	out := make([]byte, 0, wordSize*(len(words)+1))
	out = append(out, EncodeUint64(uint64(len(words)))...)
	for _, w := range words {
		out = append(out, w...)
	}
	return out
}

func parseAddress(s string) (common.Address, error) {
	if !utils.IsValidAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address '%s'", s)
	}
	return common.HexToAddress(s), nil
}

// Payment is one planned transfer to a destination.
type Payment struct {
	Recipient string
	Amount    *uint256.Int
}

// Batch is an aggregated multi-recipient transfer. Recipients are unique and every amount is positive.
type Batch struct {
	Recipients []string
	Amounts    []*uint256.Int
	Total      *uint256.Int
}

func (b *Batch) Len() int {
	return len(b.Recipients)
}

// Aggregate sums payments per lower-cased destination in first-seen order and drops zero amounts.
func Aggregate(payments []Payment) (*Batch, error) {
	totals := orderedmap.New[string, *uint256.Int]()
	for _, p := range payments {
		if p.Amount == nil || p.Amount.IsZero() {
			continue
		}
		addr, err := utils.NormalizeAddress(p.Recipient)
		if err != nil {
			return nil, err
		}
		if existing, ok := totals.Get(addr); ok {
			sum, err := numbers.AddChecked(existing, p.Amount)
			if err != nil {
				return nil, err
			}
			totals.Set(addr, sum)
			continue
		}
		totals.Set(addr, new(uint256.Int).Set(p.Amount))
	}

	batch := &Batch{
		Recipients: make([]string, 0, totals.Len()),
		Amounts:    make([]*uint256.Int, 0, totals.Len()),
		Total:      uint256.NewInt(0),
	}
	for pair := totals.Oldest(); pair != nil; pair = pair.Next() {
		total, err := numbers.AddChecked(batch.Total, pair.Value)
		if err != nil {
			return nil, err
		}
		batch.Recipients = append(batch.Recipients, pair.Key)
		batch.Amounts = append(batch.Amounts, pair.Value)
		batch.Total = total
	}
	return batch, nil
}

// BuildDisperseToken encodes disperseToken(token, recipients, values).
func BuildDisperseToken(token string, batch *Batch) ([]byte, error) {
	if batch.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	if len(batch.Recipients) != len(batch.Amounts) {
		return nil, ErrLengthMismatch
	}
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return nil, err
	}

	recipients := make([][]byte, 0, batch.Len())
	for _, r := range batch.Recipients {
		addr, err := parseAddress(r)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, EncodeAddress(addr))
	}
	amounts := make([][]byte, 0, batch.Len())
	for _, a := range batch.Amounts {
		if a.IsZero() {
			return nil, fmt.Errorf("zero amount in batch")
		}
		amounts = append(amounts, EncodeUint256(a))
	}

	// head: token, offset(recipients), offset(values)
	recipientsOffset := uint64(3 * wordSize)
	valuesOffset := recipientsOffset + uint64(wordSize*(len(recipients)+1))

	out := make([]byte, 0, 4+wordSize*(3+2*(batch.Len()+1)))
	out = append(out, DisperseTokenSelector...)
	out = append(out, EncodeAddress(tokenAddr)...)
	out = append(out, EncodeUint64(recipientsOffset)...)
	out = append(out, EncodeUint64(valuesOffset)...)
	out = append(out, EncodeDynamicArray(recipients)...)
	out = append(out, EncodeDynamicArray(amounts)...)
	return out, nil
}

func BuildApprove(spender string, amount *uint256.Int) ([]byte, error) {
	addr, err := parseAddress(spender)
	if err != nil {
		return nil, err
	}
	return concat(ApproveSelector, EncodeAddress(addr), EncodeUint256(amount)), nil
}

func BuildTransfer(to string, amount *uint256.Int) ([]byte, error) {
	addr, err := parseAddress(to)
	if err != nil {
		return nil, err
	}
	return concat(TransferSelector, EncodeAddress(addr), EncodeUint256(amount)), nil
}

func BuildBalanceOf(owner string) ([]byte, error) {
	addr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	return concat(BalanceOfSelector, EncodeAddress(addr)), nil
}

func BuildAllowance(owner, spender string) ([]byte, error) {
	o, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	s, err := parseAddress(spender)
	if err != nil {
		return nil, err
	}
	return concat(AllowanceSelector, EncodeAddress(o), EncodeAddress(s)), nil
}

// DecodeUint256 reads a single 32-byte return word.
func DecodeUint256(data []byte) (*uint256.Int, error) {
	if len(data) < wordSize {
		return nil, fmt.Errorf("return data too short: %d bytes", len(data))
	}
	return new(uint256.Int).SetBytes(data[:wordSize]), nil
}

// DecodeTransferLog decodes an ERC-20 Transfer event into (from, to, amount).
func DecodeTransferLog(topics []string, data []byte) (string, string, *uint256.Int, error) {
	if len(topics) != 3 || !strings.EqualFold(topics[0], TransferEventTopic.Hex()) {
		return "", "", nil, fmt.Errorf("not a Transfer event")
	}
	amount, err := DecodeUint256(data)
	if err != nil {
		return "", "", nil, err
	}
	from := strings.ToLower(common.HexToAddress(topics[1]).Hex())
	to := strings.ToLower(common.HexToAddress(topics[2]).Hex())
	return from, to, amount, nil
}

func concat(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
