package commands

import (
	"github.com/spf13/cobra"

	"github.com/gigboard/dispatch/config"
	"github.com/gigboard/dispatch/db"
	"github.com/gigboard/dispatch/logger"
)

// MigrateCmd applies pending database migrations and exits.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.Database.Path, logger.Logger)
		if err != nil {
			return err
		}
		defer database.Close()

		return db.Migrate(database, logger.Logger)
	},
}
