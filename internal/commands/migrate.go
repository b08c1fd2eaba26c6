package commands

import (
	"fmt"

	"github.com/gigurra/subsmart/internal/logger"
	"github.com/gigurra/subsmart/internal/settings"
	"github.com/gigurra/subsmart/internal/sqlite"
	"github.com/spf13/cobra"
)

func newMigrateCommand(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(*settingsPath)
			if err != nil {
				return err
			}
			if s.Database.Driver != "sqlite" {
				return fmt.Errorf("nothing to migrate for database.driver %q", s.Database.Driver)
			}

			store, err := sqlite.OpenStore(s.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			log := logger.NewFromConfig(s.Log.Level, s.Log.Format)
			log.Info().Str("path", s.Database.Path).Msg("Database is up to date")
			return nil
		},
	}
}
