package _202610010900_stakingTables

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`create table if not exists stakes (
			id varchar not null primary key,
			wallet varchar not null,
			token varchar not null,
			amount numeric(78,0) not null,
			active boolean not null default true,
			policy varchar not null default 'keep',
			org_wallet varchar,
			split_keep integer not null default 0,
			split_org integer not null default 0,
			split_reinvest integer not null default 0,
			auto_stake boolean not null default false,
			created_at timestamp with time zone not null default current_timestamp,
			updated_at timestamp with time zone
		)`,
		`create index if not exists idx_stakes_wallet on stakes (wallet)`,
		`create index if not exists idx_stakes_active on stakes (active) where active = true`,
		`create table if not exists distribution_period (
			id integer not null primary key default 1,
			weekly_rate numeric(78,0) not null default 0,
			distribution_count bigint not null default 0,
			last_distribution_at timestamp with time zone,
			total_weighted_units numeric(78,0) not null default 0,
			split_keep integer not null default 100,
			split_org integer not null default 0,
			split_reinvest integer not null default 0,
			constraint single_period check (id = 1)
		)`,
		`insert into distribution_period (id) values (1) on conflict (id) do nothing`,
	}
	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610010900_stakingTables"
}
