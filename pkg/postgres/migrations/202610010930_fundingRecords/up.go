package _202610010930_fundingRecords

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists funding_records (
			tx_hash varchar not null,
			kind varchar not null,
			wallet varchar not null,
			token varchar not null,
			amount numeric(78,0) not null,
			stake_id varchar,
			recorded_at timestamp with time zone not null default current_timestamp,
			constraint uniq_funding_records_tx_hash unique (tx_hash)
		)`,
		`create index if not exists idx_funding_records_wallet on funding_records (wallet)`,
	}
	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610010930_fundingRecords"
}
