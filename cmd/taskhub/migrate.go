package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskhub/internal/logging"
	"taskhub/internal/repository"
)

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := logging.New(cfg.LogLevel)
			db, err := repository.NewDB(cfg.DatabaseURL, log)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			log.WithField("database", cfg.DatabaseURL).Info("schema is up to date")
			return nil
		},
	}
}
