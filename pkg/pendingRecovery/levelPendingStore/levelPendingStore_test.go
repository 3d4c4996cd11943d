package levelPendingStore

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/stretchr/testify/assert"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"
)

func newEntry(txHash string, createdAt time.Time) *pendingRecovery.Entry {
	return &pendingRecovery.Entry{
		TxHash:    txHash,
		Kind:      stakeLedger.FundingKind_UnstakeReturn,
		Wallet:    "0x91b5c0d07859cfeafeb67d9694121cd741f049bd",
		Token:     stakeLedger.TokenClass_Boosted,
		Amount:    uint256.NewInt(1500),
		CreatedAt: createdAt,
		Records: []*stakeLedger.FundingRecord{
			{
				TxHash:             txHash,
				Kind:               stakeLedger.FundingKind_UnstakeReturn,
				Token:              stakeLedger.TokenClass_Boosted,
				Amount:             uint256.NewInt(1500),
				ReturnedUnstakeIds: []string{"unstake-1"},
			},
		},
	}
}

func Test_LevelPendingStore(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should store and read back an entry", func(t *testing.T) {
		store, err := NewLevelPendingStoreWithStorage(storage.NewMemStorage(), zap.NewNop())
		assert.Nil(t, err)
		defer store.Close()

		assert.Nil(t, store.Put(newEntry("0xabc", now)))

		entry, err := store.Get("0xABC")
		assert.Nil(t, err)
		assert.Equal(t, "0xabc", entry.TxHash)
		assert.Equal(t, "1500", entry.Amount.Dec())
		assert.Equal(t, stakeLedger.TokenClass_Boosted, entry.Token)
		assert.Len(t, entry.Records, 1)
		assert.Equal(t, []string{"unstake-1"}, entry.Records[0].ReturnedUnstakeIds)
		assert.True(t, now.Equal(entry.CreatedAt))
	})
	t.Run("Should overwrite an entry with the same tx hash", func(t *testing.T) {
		store, err := NewLevelPendingStoreWithStorage(storage.NewMemStorage(), zap.NewNop())
		assert.Nil(t, err)
		defer store.Close()

		assert.Nil(t, store.Put(newEntry("0xabc", now)))
		assert.Nil(t, store.Put(newEntry("0xabc", now.Add(time.Minute))))

		entries, err := store.List()
		assert.Nil(t, err)
		assert.Len(t, entries, 1)
	})
	t.Run("Should list entries oldest first", func(t *testing.T) {
		store, err := NewLevelPendingStoreWithStorage(storage.NewMemStorage(), zap.NewNop())
		assert.Nil(t, err)
		defer store.Close()

		assert.Nil(t, store.Put(newEntry("0x01", now.Add(2*time.Hour))))
		assert.Nil(t, store.Put(newEntry("0x02", now)))
		assert.Nil(t, store.Put(newEntry("0x03", now.Add(time.Hour))))

		entries, err := store.List()
		assert.Nil(t, err)
		assert.Len(t, entries, 3)
		assert.Equal(t, "0x02", entries[0].TxHash)
		assert.Equal(t, "0x03", entries[1].TxHash)
		assert.Equal(t, "0x01", entries[2].TxHash)
	})
	t.Run("Should delete entries and report missing ones", func(t *testing.T) {
		store, err := NewLevelPendingStoreWithStorage(storage.NewMemStorage(), zap.NewNop())
		assert.Nil(t, err)
		defer store.Close()

		assert.Nil(t, store.Put(newEntry("0xabc", now)))
		assert.Nil(t, store.Delete("0xabc"))

		_, err = store.Get("0xabc")
		assert.ErrorIs(t, err, pendingRecovery.ErrEntryNotFound)

		// deleting a missing key is not an error
		assert.Nil(t, store.Delete("0xabc"))
	})
	t.Run("Should reject an entry without records", func(t *testing.T) {
		store, err := NewLevelPendingStoreWithStorage(storage.NewMemStorage(), zap.NewNop())
		assert.Nil(t, err)
		defer store.Close()

		entry := newEntry("0xabc", now)
		entry.Records = nil
		assert.NotNil(t, store.Put(entry))
	})
	t.Run("Should survive reopening from disk", func(t *testing.T) {
		path := t.TempDir()
		store, err := NewLevelPendingStore(path, zap.NewNop())
		assert.Nil(t, err)
		assert.Nil(t, store.Put(newEntry("0xabc", now)))
		assert.Nil(t, store.Close())

		reopened, err := NewLevelPendingStore(path, zap.NewNop())
		assert.Nil(t, err)
		defer reopened.Close()

		entries, err := reopened.List()
		assert.Nil(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, "0xabc", entries[0].TxHash)
	})
}
