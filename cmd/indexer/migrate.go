package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"betIndexer/internal/config"
	"betIndexer/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the Postgres schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE:      runMigrate,
	}
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (postgres:// URL)")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PgDSN == "" {
		return errors.New("pg-dsn is required")
	}

	action := "up"
	if len(args) == 1 {
		action = args[0]
	}

	switch action {
	case "up":
		if err := postgres.Migrate(cfg.PgDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	case "down":
		if err := postgres.Rollback(cfg.PgDSN); err != nil {
			return err
		}
		logger.Info("migration rolled back")
	case "version":
		version, dirty, err := postgres.Version(cfg.PgDSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
		logger.Debug("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return nil
}
