package _202610011100_distributionCarry

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`alter table distribution_period add column if not exists carry_sevenths integer not null default 0`,
		`alter table distribution_period add column if not exists carry_units numeric(78,0) not null default 0`,
		`alter table distribution_period add constraint carry_sevenths_range check (carry_sevenths >= 0 and carry_sevenths < 7)`,
	}
	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return res.Error
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610011100_distributionCarry"
}
