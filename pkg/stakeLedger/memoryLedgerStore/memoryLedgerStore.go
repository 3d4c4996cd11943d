package memoryLedgerStore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"go.uber.org/zap"
)

// MemoryLedgerStore is an ILedgerStore held in process memory. It backs the engine in tests and
// in dry-run planning.
type MemoryLedgerStore struct {
	mu sync.Mutex

	stakes   map[string]*stakeLedger.Stake
	order    []string
	records  map[string]*stakeLedger.FundingRecord
	unstakes map[string]*stakeLedger.PendingUnstake
	period   *stakeLedger.DistributionPeriod

	failures  int
	failWith  error
	logger    *zap.Logger
	timeNowFn func() time.Time
}

func NewMemoryLedgerStore(l *zap.Logger) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		stakes:   make(map[string]*stakeLedger.Stake),
		order:    make([]string, 0),
		records:  make(map[string]*stakeLedger.FundingRecord),
		unstakes: make(map[string]*stakeLedger.PendingUnstake),
		period: &stakeLedger.DistributionPeriod{
			WeeklyRate:         uint256.NewInt(0),
			TotalWeightedUnits: uint256.NewInt(0),
			SplitPct:           stakeLedger.DefaultSplitPct,
			CarryUnits:         uint256.NewInt(0),
		},
		logger:    l,
		timeNowFn: time.Now,
	}
}

// FailNextWrites makes the next n writes return ErrLedgerWriteFailure.
func (m *MemoryLedgerStore) FailNextWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failWith = stakeLedger.ErrLedgerWriteFailure
}

func (m *MemoryLedgerStore) checkWrite() error {
	if m.failures > 0 {
		m.failures--
		return m.failWith
	}
	return nil
}

func copyStake(s *stakeLedger.Stake) *stakeLedger.Stake {
	c := *s
	c.Amount = new(uint256.Int).Set(s.Amount)
	return &c
}

func copyUnstake(u *stakeLedger.PendingUnstake) *stakeLedger.PendingUnstake {
	c := *u
	c.Amount = new(uint256.Int).Set(u.Amount)
	return &c
}

func copyPeriod(p *stakeLedger.DistributionPeriod) *stakeLedger.DistributionPeriod {
	c := *p
	c.WeeklyRate = new(uint256.Int).Set(p.WeeklyRate)
	c.TotalWeightedUnits = new(uint256.Int).Set(p.TotalWeightedUnits)
	c.CarryUnits = new(uint256.Int).Set(p.CarryUnits)
	if p.LastDistributionAt != nil {
		t := *p.LastDistributionAt
		c.LastDistributionAt = &t
	}
	return &c
}

func (m *MemoryLedgerStore) CreateStake(ctx context.Context, stake *stakeLedger.Stake) (*stakeLedger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(); err != nil {
		return nil, err
	}
	return m.createStake(stake)
}

func (m *MemoryLedgerStore) createStake(stake *stakeLedger.Stake) (*stakeLedger.Stake, error) {
	s := copyStake(stake)
	s.Policy = s.Policy.Normalized()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if existing, ok := m.stakes[s.Id]; ok {
		return copyStake(existing), nil
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.timeNowFn()
	}
	m.stakes[s.Id] = s
	m.order = append(m.order, s.Id)
	return copyStake(s), nil
}

func (m *MemoryLedgerStore) ListStakes(ctx context.Context, wallet string) ([]*stakeLedger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stakes := make([]*stakeLedger.Stake, 0)
	for _, id := range m.order {
		if s := m.stakes[id]; s.Wallet == wallet {
			stakes = append(stakes, copyStake(s))
		}
	}
	return stakes, nil
}

func (m *MemoryLedgerStore) ListActiveStakes(ctx context.Context) ([]*stakeLedger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stakes := make([]*stakeLedger.Stake, 0)
	for _, id := range m.order {
		if s := m.stakes[id]; s.Active {
			stakes = append(stakes, copyStake(s))
		}
	}
	return stakes, nil
}

func (m *MemoryLedgerStore) GetStake(ctx context.Context, id string) (*stakeLedger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stakes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, id)
	}
	return copyStake(s), nil
}

func (m *MemoryLedgerStore) RecordFunding(ctx context.Context, record *stakeLedger.FundingRecord) (stakeLedger.RecordResult, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(); err != nil {
		return "", err
	}
	if _, ok := m.records[record.TxHash]; ok {
		m.logger.Sugar().Debugw("Funding record already exists",
			zap.String("txHash", record.TxHash),
			zap.String("kind", string(record.Kind)),
		)
		return stakeLedger.RecordResult_Duplicate, nil
	}

	// side effects are validated before the record is stored so a failure leaves nothing behind
	if err := m.applySideEffect(record); err != nil {
		return "", err
	}
	r := *record
	r.Amount = new(uint256.Int).Set(record.Amount)
	if r.RecordedAt.IsZero() {
		r.RecordedAt = m.timeNowFn()
	}
	m.records[r.TxHash] = &r
	return stakeLedger.RecordResult_Created, nil
}

func (m *MemoryLedgerStore) applySideEffect(record *stakeLedger.FundingRecord) error {
	switch record.Kind {
	case stakeLedger.FundingKind_Deposit:
		_, err := m.createStake(&stakeLedger.Stake{
			Id:        record.StakeId,
			Wallet:    record.Wallet,
			Token:     record.Token,
			Amount:    record.Amount,
			Active:    true,
			Policy:    record.Policy,
			AutoStake: record.AutoStake,
		})
		return err
	case stakeLedger.FundingKind_Compound:
		s, ok := m.stakes[record.StakeId]
		if !ok {
			return fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, record.StakeId)
		}
		s.Amount = new(uint256.Int).Add(s.Amount, record.Amount)
	case stakeLedger.FundingKind_Reward:
		a := record.Advance
		runAt := a.RunAt
		m.period.DistributionCount++
		m.period.LastDistributionAt = &runAt
		m.period.CarrySevenths = a.CarrySevenths
		m.period.CarryUnits = new(uint256.Int).Set(a.CarryUnits)
		if a.TotalWeightedUnits != nil {
			m.period.TotalWeightedUnits = new(uint256.Int).Set(a.TotalWeightedUnits)
		}
	case stakeLedger.FundingKind_UnstakeReturn:
		m.markReturned(record.ReturnedUnstakeIds, record.TxHash)
	}
	return nil
}

func (m *MemoryLedgerStore) GetFundingRecord(ctx context.Context, txHash string) (*stakeLedger.FundingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[txHash]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

// FundingRecords returns every stored record ordered by tx hash.
func (m *MemoryLedgerStore) FundingRecords() []*stakeLedger.FundingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*stakeLedger.FundingRecord, 0, len(m.records))
	for _, r := range m.records {
		c := *r
		records = append(records, &c)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].TxHash < records[j].TxHash
	})
	return records
}

func (m *MemoryLedgerStore) CreatePendingUnstake(ctx context.Context, unstake *stakeLedger.PendingUnstake) (*stakeLedger.PendingUnstake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(); err != nil {
		return nil, err
	}
	s, ok := m.stakes[unstake.StakeId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, unstake.StakeId)
	}
	if !s.Active {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrStakeInactive, unstake.StakeId)
	}
	u := copyUnstake(unstake)
	if u.RequestedAt.IsZero() {
		u.RequestedAt = m.timeNowFn()
	}
	u.WithdrawalStatus = stakeLedger.WithdrawalStatus_Pending
	s.Active = false
	m.unstakes[u.Id] = u
	return copyUnstake(u), nil
}

func (m *MemoryLedgerStore) ListPendingUnstakes(ctx context.Context, status stakeLedger.WithdrawalStatus) ([]*stakeLedger.PendingUnstake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unstakes := make([]*stakeLedger.PendingUnstake, 0)
	for _, u := range m.unstakes {
		if u.WithdrawalStatus == status {
			unstakes = append(unstakes, copyUnstake(u))
		}
	}
	sort.Slice(unstakes, func(i, j int) bool {
		if unstakes[i].RequestedAt.Equal(unstakes[j].RequestedAt) {
			return unstakes[i].Id < unstakes[j].Id
		}
		return unstakes[i].RequestedAt.Before(unstakes[j].RequestedAt)
	})
	return unstakes, nil
}

func (m *MemoryLedgerStore) MarkReturned(ctx context.Context, unstakeIds []string, txHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(); err != nil {
		return 0, err
	}
	return m.markReturned(unstakeIds, txHash), nil
}

func (m *MemoryLedgerStore) markReturned(unstakeIds []string, txHash string) int64 {
	var updated int64
	for _, id := range unstakeIds {
		u, ok := m.unstakes[id]
		if ok && u.WithdrawalStatus == stakeLedger.WithdrawalStatus_Pending {
			u.WithdrawalStatus = stakeLedger.WithdrawalStatus_Returned
			u.ReturnTxHash = txHash
			updated++
		}
	}
	return updated
}

func (m *MemoryLedgerStore) GetDistributionPeriod(ctx context.Context) (*stakeLedger.DistributionPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyPeriod(m.period), nil
}

func (m *MemoryLedgerStore) UpdateDistributionPeriod(ctx context.Context, weeklyRate *uint256.Int, splitPct *stakeLedger.SplitPct) (*stakeLedger.DistributionPeriod, error) {
	if splitPct != nil {
		if err := splitPct.Validate(); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(); err != nil {
		return nil, err
	}
	if weeklyRate != nil {
		m.period.WeeklyRate = new(uint256.Int).Set(weeklyRate)
	}
	if splitPct != nil {
		m.period.SplitPct = *splitPct
	}
	return copyPeriod(m.period), nil
}
