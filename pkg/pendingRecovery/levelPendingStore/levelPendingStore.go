package levelPendingStore

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/inclawbate/staking-engine/pkg/pendingRecovery"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const keyPrefix = "pending/"

type LevelPendingStore struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// NewLevelPendingStore opens (or creates) the pending log at path, recovering a corrupted
// manifest if needed.
func NewLevelPendingStore(path string, l *zap.Logger) (*LevelPendingStore, error) {
	opts := &opt.Options{}
	db, err := leveldb.OpenFile(path, opts)
	if lerrors.IsCorrupted(err) {
		l.Sugar().Warnw("Pending store corrupted, recovering", zap.String("path", path))
		db, err = leveldb.RecoverFile(path, opts)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pending store at %s", path)
	}
	return &LevelPendingStore{db: db, logger: l}, nil
}

// NewLevelPendingStoreWithStorage opens the pending log over an arbitrary leveldb storage.
func NewLevelPendingStoreWithStorage(stor storage.Storage, l *zap.Logger) (*LevelPendingStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pending store")
	}
	return &LevelPendingStore{db: db, logger: l}, nil
}

func entryKey(txHash string) []byte {
	return []byte(keyPrefix + strings.ToLower(txHash))
}

func (s *LevelPendingStore) Put(entry *pendingRecovery.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to encode pending entry")
	}
	if err := s.db.Put(entryKey(entry.TxHash), value, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "failed to write pending entry %s", entry.TxHash)
	}
	s.logger.Sugar().Debugw("Pending entry stored",
		zap.String("txHash", entry.TxHash),
		zap.String("kind", string(entry.Kind)),
	)
	return nil
}

func (s *LevelPendingStore) Get(txHash string) (*pendingRecovery.Entry, error) {
	value, err := s.db.Get(entryKey(txHash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrap(pendingRecovery.ErrEntryNotFound, txHash)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pending entry %s", txHash)
	}
	entry := &pendingRecovery.Entry{}
	if err := json.Unmarshal(value, entry); err != nil {
		return nil, errors.Wrapf(err, "failed to decode pending entry %s", txHash)
	}
	return entry, nil
}

func (s *LevelPendingStore) Delete(txHash string) error {
	if err := s.db.Delete(entryKey(txHash), &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "failed to delete pending entry %s", txHash)
	}
	return nil
}

// List returns every pending entry, oldest first.
func (s *LevelPendingStore) List() ([]*pendingRecovery.Entry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	entries := make([]*pendingRecovery.Entry, 0)
	for iter.Next() {
		entry := &pendingRecovery.Entry{}
		if err := json.Unmarshal(iter.Value(), entry); err != nil {
			s.logger.Sugar().Errorw("Skipping undecodable pending entry",
				zap.String("key", string(iter.Key())),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate pending entries")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *LevelPendingStore) Close() error {
	return s.db.Close()
}
