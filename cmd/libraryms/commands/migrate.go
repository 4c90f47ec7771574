package commands

import (
	"github.com/spf13/cobra"

	"libraryms/internal/store/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sqlstore.Migrate(cfg.DBDriver, cfg.DatabaseURL); err != nil {
			return err
		}
		log.WithField("driver", cfg.DBDriver).Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
