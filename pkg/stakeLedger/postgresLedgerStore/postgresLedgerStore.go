package postgresLedgerStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/inclawbate/staking-engine/internal/types/numbers"
	"github.com/inclawbate/staking-engine/pkg/postgres"
	"github.com/inclawbate/staking-engine/pkg/stakeLedger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PostgresLedgerStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPostgresLedgerStore(db *gorm.DB, l *zap.Logger) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db:     db,
		logger: l,
	}
}

type stakeRow struct {
	Id            string
	Wallet        string
	Token         string
	Amount        string
	Active        bool
	Policy        string
	OrgWallet     sql.NullString
	SplitKeep     int
	SplitOrg      int
	SplitReinvest int
	AutoStake     bool
	CreatedAt     time.Time
}

func (r *stakeRow) toStake() (*stakeLedger.Stake, error) {
	amount, err := numbers.ParseUint256(r.Amount)
	if err != nil {
		return nil, err
	}
	return &stakeLedger.Stake{
		Id:        r.Id,
		Wallet:    r.Wallet,
		Token:     stakeLedger.TokenClass(r.Token),
		Amount:    amount,
		CreatedAt: r.CreatedAt,
		Active:    r.Active,
		Policy: stakeLedger.RedirectPolicy{
			Kind:      stakeLedger.PolicyKind(r.Policy),
			OrgWallet: r.OrgWallet.String,
			Split: stakeLedger.SplitPct{
				Keep:     uint8(r.SplitKeep),
				Org:      uint8(r.SplitOrg),
				Reinvest: uint8(r.SplitReinvest),
			},
		},
		AutoStake: r.AutoStake,
	}, nil
}

type periodRow struct {
	WeeklyRate         string
	DistributionCount  uint64
	LastDistributionAt *time.Time
	TotalWeightedUnits string
	SplitKeep          int
	SplitOrg           int
	SplitReinvest      int
	CarrySevenths      int
	CarryUnits         string
}

type unstakeRow struct {
	Id               string
	StakeId          string
	Wallet           string
	Token            string
	Amount           string
	RequestedAt      time.Time
	WithdrawalStatus string
	ReturnTxHash     sql.NullString
}

type fundingRow struct {
	TxHash     string
	Kind       string
	Wallet     string
	Token      string
	Amount     string
	StakeId    sql.NullString
	RecordedAt time.Time
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func writeFailure(err error, msg string) error {
	return fmt.Errorf("%w: %s", stakeLedger.ErrLedgerWriteFailure, errors.Wrap(err, msg).Error())
}

const insertStakeQuery = `
	insert into stakes (id, wallet, token, amount, active, policy, org_wallet, split_keep, split_org, split_reinvest, auto_stake, created_at)
	values (@id, @wallet, @token, @amount, @active, @policy, @orgWallet, @splitKeep, @splitOrg, @splitReinvest, @autoStake, @createdAt)
	on conflict (id) do nothing
`

func insertStake(tx *gorm.DB, stake *stakeLedger.Stake) error {
	s := *stake
	s.Policy = s.Policy.Normalized()
	if err := s.Validate(); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res := tx.Exec(insertStakeQuery,
		sql.Named("id", s.Id),
		sql.Named("wallet", s.Wallet),
		sql.Named("token", string(s.Token)),
		sql.Named("amount", s.Amount.Dec()),
		sql.Named("active", s.Active),
		sql.Named("policy", string(s.Policy.Kind)),
		sql.Named("orgWallet", nullString(s.Policy.OrgWallet)),
		sql.Named("splitKeep", int(s.Policy.Split.Keep)),
		sql.Named("splitOrg", int(s.Policy.Split.Org)),
		sql.Named("splitReinvest", int(s.Policy.Split.Reinvest)),
		sql.Named("autoStake", s.AutoStake),
		sql.Named("createdAt", s.CreatedAt),
	)
	return res.Error
}

func (p *PostgresLedgerStore) CreateStake(ctx context.Context, stake *stakeLedger.Stake) (*stakeLedger.Stake, error) {
	if err := insertStake(p.db.WithContext(ctx), stake); err != nil {
		if errors.Is(err, stakeLedger.ErrInvalidAmount) || errors.Is(err, stakeLedger.ErrInvalidSplit) || errors.Is(err, stakeLedger.ErrInvalidTokenClass) {
			return nil, err
		}
		p.logger.Sugar().Errorw("Failed to create stake", zap.String("id", stake.Id), zap.Error(err))
		return nil, writeFailure(err, "insert stake")
	}
	return p.GetStake(ctx, stake.Id)
}

func (p *PostgresLedgerStore) listStakes(ctx context.Context, query string, args ...interface{}) ([]*stakeLedger.Stake, error) {
	rows := make([]*stakeRow, 0)
	res := p.db.WithContext(ctx).Raw(query, args...).Scan(&rows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list stakes")
	}
	stakes := make([]*stakeLedger.Stake, 0, len(rows))
	for _, r := range rows {
		s, err := r.toStake()
		if err != nil {
			return nil, err
		}
		stakes = append(stakes, s)
	}
	return stakes, nil
}

func (p *PostgresLedgerStore) ListStakes(ctx context.Context, wallet string) ([]*stakeLedger.Stake, error) {
	return p.listStakes(ctx, `select * from stakes where wallet = @wallet order by created_at asc, id asc`,
		sql.Named("wallet", strings.ToLower(wallet)),
	)
}

func (p *PostgresLedgerStore) ListActiveStakes(ctx context.Context) ([]*stakeLedger.Stake, error) {
	return p.listStakes(ctx, `select * from stakes where active = true order by created_at asc, id asc`)
}

func (p *PostgresLedgerStore) GetStake(ctx context.Context, id string) (*stakeLedger.Stake, error) {
	stakes, err := p.listStakes(ctx, `select * from stakes where id = @id limit 1`, sql.Named("id", id))
	if err != nil {
		return nil, err
	}
	if len(stakes) == 0 {
		return nil, fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, id)
	}
	return stakes[0], nil
}

const insertFundingQuery = `
	insert into funding_records (tx_hash, kind, wallet, token, amount, stake_id, recorded_at)
	values (@txHash, @kind, @wallet, @token, @amount, @stakeId, @recordedAt)
	on conflict (tx_hash) do nothing
`

func (p *PostgresLedgerStore) RecordFunding(ctx context.Context, record *stakeLedger.FundingRecord) (stakeLedger.RecordResult, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(insertFundingQuery,
			sql.Named("txHash", record.TxHash),
			sql.Named("kind", string(record.Kind)),
			sql.Named("wallet", record.Wallet),
			sql.Named("token", string(record.Token)),
			sql.Named("amount", record.Amount.Dec()),
			sql.Named("stakeId", nullString(record.StakeId)),
			sql.Named("recordedAt", recordedAt),
		)
		if res.Error != nil {
			if postgres.IsDuplicateKeyError(res.Error) {
				return stakeLedger.ErrDuplicateRecord
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return stakeLedger.ErrDuplicateRecord
		}
		return p.applySideEffect(tx, record)
	})

	if errors.Is(err, stakeLedger.ErrDuplicateRecord) {
		p.logger.Sugar().Debugw("Funding record already exists",
			zap.String("txHash", record.TxHash),
			zap.String("kind", string(record.Kind)),
		)
		return stakeLedger.RecordResult_Duplicate, nil
	}
	if err != nil {
		p.logger.Sugar().Errorw("Failed to record funding",
			zap.String("txHash", record.TxHash),
			zap.String("kind", string(record.Kind)),
			zap.Error(err),
		)
		if errors.Is(err, stakeLedger.ErrStakeNotFound) {
			return "", err
		}
		return "", writeFailure(err, "record funding")
	}
	return stakeLedger.RecordResult_Created, nil
}

func (p *PostgresLedgerStore) applySideEffect(tx *gorm.DB, record *stakeLedger.FundingRecord) error {
	switch record.Kind {
	case stakeLedger.FundingKind_Deposit:
		return insertStake(tx, &stakeLedger.Stake{
			Id:        record.StakeId,
			Wallet:    record.Wallet,
			Token:     record.Token,
			Amount:    record.Amount,
			Active:    true,
			Policy:    record.Policy,
			AutoStake: record.AutoStake,
		})
	case stakeLedger.FundingKind_Compound:
		res := tx.Exec(`update stakes set amount = amount + @amount, updated_at = now() where id = @id`,
			sql.Named("amount", record.Amount.Dec()),
			sql.Named("id", record.StakeId),
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, record.StakeId)
		}
		return nil
	case stakeLedger.FundingKind_Reward:
		a := record.Advance
		totalWeighted := "total_weighted_units"
		args := []interface{}{
			sql.Named("runAt", a.RunAt),
			sql.Named("carrySevenths", int(a.CarrySevenths)),
			sql.Named("carryUnits", a.CarryUnits.Dec()),
		}
		if a.TotalWeightedUnits != nil {
			totalWeighted = "@totalWeighted"
			args = append(args, sql.Named("totalWeighted", a.TotalWeightedUnits.Dec()))
		}
		query := fmt.Sprintf(`
			update distribution_period set
				distribution_count = distribution_count + 1,
				last_distribution_at = @runAt,
				carry_sevenths = @carrySevenths,
				carry_units = @carryUnits,
				total_weighted_units = %s
			where id = 1
		`, totalWeighted)
		return tx.Exec(query, args...).Error
	case stakeLedger.FundingKind_UnstakeReturn:
		if _, err := markReturned(tx, record.ReturnedUnstakeIds, record.TxHash); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresLedgerStore) GetFundingRecord(ctx context.Context, txHash string) (*stakeLedger.FundingRecord, error) {
	rows := make([]*fundingRow, 0)
	res := p.db.WithContext(ctx).Raw(`select * from funding_records where tx_hash = @txHash limit 1`, sql.Named("txHash", txHash)).Scan(&rows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to get funding record")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	amount, err := numbers.ParseUint256(r.Amount)
	if err != nil {
		return nil, err
	}
	return &stakeLedger.FundingRecord{
		TxHash:     r.TxHash,
		Kind:       stakeLedger.FundingKind(r.Kind),
		Wallet:     r.Wallet,
		Token:      stakeLedger.TokenClass(r.Token),
		Amount:     amount,
		StakeId:    r.StakeId.String,
		RecordedAt: r.RecordedAt,
	}, nil
}

func (p *PostgresLedgerStore) CreatePendingUnstake(ctx context.Context, unstake *stakeLedger.PendingUnstake) (*stakeLedger.PendingUnstake, error) {
	u := *unstake
	if u.RequestedAt.IsZero() {
		u.RequestedAt = time.Now().UTC()
	}
	u.WithdrawalStatus = stakeLedger.WithdrawalStatus_Pending

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows := make([]*stakeRow, 0)
		res := tx.Raw(`select * from stakes where id = @id for update`, sql.Named("id", u.StakeId)).Scan(&rows)
		if res.Error != nil {
			return res.Error
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: %s", stakeLedger.ErrStakeNotFound, u.StakeId)
		}
		if !rows[0].Active {
			return fmt.Errorf("%w: %s", stakeLedger.ErrStakeInactive, u.StakeId)
		}
		res = tx.Exec(`update stakes set active = false, updated_at = now() where id = @id`, sql.Named("id", u.StakeId))
		if res.Error != nil {
			return res.Error
		}
		res = tx.Exec(`
			insert into pending_unstakes (id, stake_id, wallet, token, amount, requested_at, withdrawal_status)
			values (@id, @stakeId, @wallet, @token, @amount, @requestedAt, @status)
		`,
			sql.Named("id", u.Id),
			sql.Named("stakeId", u.StakeId),
			sql.Named("wallet", u.Wallet),
			sql.Named("token", string(u.Token)),
			sql.Named("amount", u.Amount.Dec()),
			sql.Named("requestedAt", u.RequestedAt),
			sql.Named("status", string(u.WithdrawalStatus)),
		)
		return res.Error
	})
	if err != nil {
		if errors.Is(err, stakeLedger.ErrStakeNotFound) || errors.Is(err, stakeLedger.ErrStakeInactive) {
			return nil, err
		}
		p.logger.Sugar().Errorw("Failed to create pending unstake", zap.String("stakeId", u.StakeId), zap.Error(err))
		return nil, writeFailure(err, "create pending unstake")
	}
	return &u, nil
}

func (p *PostgresLedgerStore) ListPendingUnstakes(ctx context.Context, status stakeLedger.WithdrawalStatus) ([]*stakeLedger.PendingUnstake, error) {
	rows := make([]*unstakeRow, 0)
	res := p.db.WithContext(ctx).Raw(`
		select * from pending_unstakes
		where withdrawal_status = @status
		order by requested_at asc, id asc
	`, sql.Named("status", string(status))).Scan(&rows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list pending unstakes")
	}
	unstakes := make([]*stakeLedger.PendingUnstake, 0, len(rows))
	for _, r := range rows {
		amount, err := numbers.ParseUint256(r.Amount)
		if err != nil {
			return nil, err
		}
		unstakes = append(unstakes, &stakeLedger.PendingUnstake{
			Id:               r.Id,
			StakeId:          r.StakeId,
			Wallet:           r.Wallet,
			Token:            stakeLedger.TokenClass(r.Token),
			Amount:           amount,
			RequestedAt:      r.RequestedAt,
			WithdrawalStatus: stakeLedger.WithdrawalStatus(r.WithdrawalStatus),
			ReturnTxHash:     r.ReturnTxHash.String,
		})
	}
	return unstakes, nil
}

func markReturned(tx *gorm.DB, unstakeIds []string, txHash string) (int64, error) {
	if len(unstakeIds) == 0 {
		return 0, nil
	}
	res := tx.Exec(`
		update pending_unstakes set withdrawal_status = @returned, return_tx_hash = @txHash
		where id in @ids and withdrawal_status = @pending
	`,
		sql.Named("returned", string(stakeLedger.WithdrawalStatus_Returned)),
		sql.Named("txHash", txHash),
		sql.Named("ids", unstakeIds),
		sql.Named("pending", string(stakeLedger.WithdrawalStatus_Pending)),
	)
	return res.RowsAffected, res.Error
}

func (p *PostgresLedgerStore) MarkReturned(ctx context.Context, unstakeIds []string, txHash string) (int64, error) {
	n, err := markReturned(p.db.WithContext(ctx), unstakeIds, txHash)
	if err != nil {
		return 0, writeFailure(err, "mark returned")
	}
	return n, nil
}

func (p *PostgresLedgerStore) GetDistributionPeriod(ctx context.Context) (*stakeLedger.DistributionPeriod, error) {
	rows := make([]*periodRow, 0)
	res := p.db.WithContext(ctx).Raw(`select * from distribution_period where id = 1`).Scan(&rows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to get distribution period")
	}
	if len(rows) == 0 {
		return nil, errors.New("distribution period row is missing")
	}
	r := rows[0]
	weekly, err := numbers.ParseUint256(r.WeeklyRate)
	if err != nil {
		return nil, err
	}
	total, err := numbers.ParseUint256(r.TotalWeightedUnits)
	if err != nil {
		return nil, err
	}
	carry, err := numbers.ParseUint256(r.CarryUnits)
	if err != nil {
		return nil, err
	}
	return &stakeLedger.DistributionPeriod{
		WeeklyRate:         weekly,
		DistributionCount:  r.DistributionCount,
		LastDistributionAt: r.LastDistributionAt,
		TotalWeightedUnits: total,
		SplitPct: stakeLedger.SplitPct{
			Keep:     uint8(r.SplitKeep),
			Org:      uint8(r.SplitOrg),
			Reinvest: uint8(r.SplitReinvest),
		},
		CarrySevenths: uint8(r.CarrySevenths),
		CarryUnits:    carry,
	}, nil
}

func (p *PostgresLedgerStore) UpdateDistributionPeriod(ctx context.Context, weeklyRate *uint256.Int, splitPct *stakeLedger.SplitPct) (*stakeLedger.DistributionPeriod, error) {
	sets := make([]string, 0)
	args := make([]interface{}, 0)
	if weeklyRate != nil {
		sets = append(sets, "weekly_rate = @weeklyRate")
		args = append(args, sql.Named("weeklyRate", weeklyRate.Dec()))
	}
	if splitPct != nil {
		if err := splitPct.Validate(); err != nil {
			return nil, err
		}
		sets = append(sets, "split_keep = @splitKeep", "split_org = @splitOrg", "split_reinvest = @splitReinvest")
		args = append(args,
			sql.Named("splitKeep", int(splitPct.Keep)),
			sql.Named("splitOrg", int(splitPct.Org)),
			sql.Named("splitReinvest", int(splitPct.Reinvest)),
		)
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update distribution_period set %s where id = 1`, strings.Join(sets, ", "))
		if res := p.db.WithContext(ctx).Exec(query, args...); res.Error != nil {
			return nil, writeFailure(res.Error, "update distribution period")
		}
	}
	return p.GetDistributionPeriod(ctx)
}
