package _202610011000_pendingUnstakes

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists pending_unstakes (
			id varchar not null primary key,
			stake_id varchar not null references stakes (id),
			wallet varchar not null,
			token varchar not null,
			amount numeric(78,0) not null,
			requested_at timestamp with time zone not null default current_timestamp,
			withdrawal_status varchar not null default 'pending',
			return_tx_hash varchar,
			constraint uniq_pending_unstakes_stake unique (stake_id)
		)`,
		`create index if not exists idx_pending_unstakes_status on pending_unstakes (withdrawal_status, token)`,
	}
	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610011000_pendingUnstakes"
}
