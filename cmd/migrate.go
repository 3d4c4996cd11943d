package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database if needed and apply every pending migration",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg, l, err := loadConfig()
		if err != nil {
			if l == nil {
				panic(err)
			}
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}
		grm, err := openDatabase(cfg, l, true)
		if err != nil {
			l.Sugar().Fatalw("Migration failed", zap.Error(err))
		}
		if db, err := grm.DB(); err == nil {
			_ = db.Close()
		}
		l.Sugar().Infow("Database migrated")
	},
}
