package tokenChain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/calldata"
)

// MockChain is an in-memory IChain for engine tests and dry runs. Balances move when a submitted
// transaction's scripted outcome is success.
type MockChain struct {
	mu sync.Mutex

	operator string
	disperse string

	balances   map[string]*uint256.Int
	allowances map[string]*uint256.Int

	// receipts holds the remaining scripted statuses per tx; the last one repeats.
	receipts     map[string][]ReceiptStatus
	receiptReads map[string]int
	logs         map[string][]*TransferLog

	// NextOutcome is the receipt script given to the next submitted transaction.
	NextOutcome []ReceiptStatus
	// ApproveOutcome overrides NextOutcome for approvals when set.
	ApproveOutcome []ReceiptStatus

	SubmitErr      error
	ReadErr        error
	ReceiptReadErr int

	Submitted []*SubmittedTx
	nonce     uint64
}

type SubmittedTx struct {
	TxHash  string
	Kind    string
	Token   string
	Spender string
	Amount  *uint256.Int
	Batch   *calldata.Batch
}

func NewMockChain(operator string, disperse string) *MockChain {
	return &MockChain{
		operator:     strings.ToLower(operator),
		disperse:     strings.ToLower(disperse),
		balances:     make(map[string]*uint256.Int),
		allowances:   make(map[string]*uint256.Int),
		receipts:     make(map[string][]ReceiptStatus),
		receiptReads: make(map[string]int),
		logs:         make(map[string][]*TransferLog),
		NextOutcome:  []ReceiptStatus{ReceiptStatus_Success},
		Submitted:    make([]*SubmittedTx, 0),
	}
}

func balanceKey(token, owner string) string {
	return strings.ToLower(token) + "|" + strings.ToLower(owner)
}

func allowanceKey(token, owner, spender string) string {
	return strings.ToLower(token) + "|" + strings.ToLower(owner) + "|" + strings.ToLower(spender)
}

func (m *MockChain) OperatorAddress() string {
	return m.operator
}

func (m *MockChain) DisperseAddress() string {
	return m.disperse
}

func (m *MockChain) SetBalance(token, owner string, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey(token, owner)] = new(uint256.Int).Set(amount)
}

func (m *MockChain) SetAllowance(token, owner, spender string, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey(token, owner, spender)] = new(uint256.Int).Set(amount)
}

// ScriptReceipt sets the statuses returned by successive GetReceipt calls for txHash.
func (m *MockChain) ScriptReceipt(txHash string, statuses ...ReceiptStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[strings.ToLower(txHash)] = statuses
}

// AddTransferLog registers a mined deposit transaction with one Transfer event.
func (m *MockChain) AddTransferLog(txHash string, log *TransferLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := strings.ToLower(txHash)
	m.logs[h] = append(m.logs[h], log)
	if _, ok := m.receipts[h]; !ok {
		m.receipts[h] = []ReceiptStatus{ReceiptStatus_Success}
	}
}

func (m *MockChain) ReceiptReads(txHash string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receiptReads[strings.ToLower(txHash)]
}

func (m *MockChain) SubmittedOf(kind string) []*SubmittedTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SubmittedTx, 0)
	for _, s := range m.Submitted {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (m *MockChain) BalanceOf(ctx context.Context, token string, owner string) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if b, ok := m.balances[balanceKey(token, owner)]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return uint256.NewInt(0), nil
}

func (m *MockChain) Allowance(ctx context.Context, token string, owner string, spender string) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if a, ok := m.allowances[allowanceKey(token, owner, spender)]; ok {
		return new(uint256.Int).Set(a), nil
	}
	return uint256.NewInt(0), nil
}

func (m *MockChain) nextHash() string {
	m.nonce++
	return strings.ToLower(crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", m.operator, m.nonce))).Hex())
}

func succeeds(script []ReceiptStatus) bool {
	return len(script) > 0 && script[len(script)-1] == ReceiptStatus_Success
}

func (m *MockChain) Approve(ctx context.Context, token string, spender string, amount *uint256.Int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	h := m.nextHash()
	script := m.NextOutcome
	if m.ApproveOutcome != nil {
		script = m.ApproveOutcome
	}
	m.receipts[h] = script
	if succeeds(script) {
		m.allowances[allowanceKey(token, m.operator, spender)] = new(uint256.Int).Set(amount)
	}
	m.Submitted = append(m.Submitted, &SubmittedTx{TxHash: h, Kind: "approve", Token: strings.ToLower(token), Spender: strings.ToLower(spender), Amount: amount})
	return h, nil
}

func (m *MockChain) SubmitBatchTransfer(ctx context.Context, token string, batch *calldata.Batch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// an uncertain broadcast still yields a hash whose receipt follows the script
	if m.SubmitErr != nil && !errors.Is(m.SubmitErr, ErrBroadcastUncertain) {
		return "", m.SubmitErr
	}
	if _, err := calldata.BuildDisperseToken(token, batch); err != nil {
		return "", err
	}
	h := m.nextHash()
	script := m.NextOutcome
	m.receipts[h] = script
	m.Submitted = append(m.Submitted, &SubmittedTx{TxHash: h, Kind: "batch", Token: strings.ToLower(token), Amount: batch.Total, Batch: batch})

	if succeeds(script) {
		from := balanceKey(token, m.operator)
		bal, ok := m.balances[from]
		if !ok || bal.Lt(batch.Total) {
			m.receipts[h] = []ReceiptStatus{ReceiptStatus_Reverted}
		} else {
			m.balances[from] = new(uint256.Int).Sub(bal, batch.Total)
			for i, r := range batch.Recipients {
				to := balanceKey(token, r)
				cur, ok := m.balances[to]
				if !ok {
					cur = uint256.NewInt(0)
				}
				m.balances[to] = new(uint256.Int).Add(cur, batch.Amounts[i])
			}
		}
	}
	if m.SubmitErr != nil {
		return h, fmt.Errorf("%w %s", m.SubmitErr, h)
	}
	return h, nil
}

func (m *MockChain) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := strings.ToLower(txHash)
	m.receiptReads[h]++
	if m.ReceiptReadErr > 0 {
		m.ReceiptReadErr--
		return nil, errors.New("receipt read failed")
	}
	script, ok := m.receipts[h]
	if !ok || len(script) == 0 {
		return &Receipt{TxHash: h, Status: ReceiptStatus_Pending}, nil
	}
	status := script[0]
	if len(script) > 1 {
		m.receipts[h] = script[1:]
	}
	return &Receipt{TxHash: h, Status: status, BlockNumber: 1}, nil
}

func (m *MockChain) TransferLogs(ctx context.Context, txHash string) ([]*TransferLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs, ok := m.logs[strings.ToLower(txHash)]
	if !ok {
		return []*TransferLog{}, nil
	}
	return logs, nil
}
