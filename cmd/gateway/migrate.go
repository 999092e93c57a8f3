package main

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mind-engage/mindengage-lessons/internal/config"
	"github.com/mind-engage/mindengage-lessons/internal/observability"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

// newMigrateCmd creates the lesson schema and the grade-book tables, then exits.
func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

			dbh, driver, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer dbh.Close()
			if err := gradebook.Migrate(cmd.Context(), dbh, string(driver)); err != nil {
				return errors.Wrap(err, "gradebook schema")
			}
			logger.Info("schema ready", slog.String("db", string(driver)))
			return nil
		},
	}
}
