package pendingRecovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
)

var ErrEntryNotFound = errors.New("pending entry not found")

// Entry is a funding transaction that was submitted but whose ledger records are not yet written.
// Records are the funding records to write once the transaction is confirmed.
type Entry struct {
	TxHash    string
	Kind      stakeLedger.FundingKind
	Wallet    string
	Token     stakeLedger.TokenClass
	Amount    *uint256.Int
	CreatedAt time.Time
	Records   []*stakeLedger.FundingRecord
}

func (e *Entry) Validate() error {
	if e.TxHash == "" {
		return fmt.Errorf("pending entry requires a tx hash")
	}
	if len(e.Records) == 0 {
		return fmt.Errorf("pending entry %s has no records to write", e.TxHash)
	}
	return nil
}

// Age is how long the entry has been pending at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// IPendingStore is the durable pending set keyed by tx hash.
type IPendingStore interface {
	Put(entry *Entry) error
	Get(txHash string) (*Entry, error)
	Delete(txHash string) error
	List() ([]*Entry, error)
	Close() error
}
