package commands

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../commands.Version=..."
var Version = "dev"

// NewRootCommand creates the service command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var settingsPath string

	rootCmd := &cobra.Command{
		Use:     "subsmart-api",
		Short:   "Subscription detection and insights service",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default $SUBSMART_CONFIG or ~/.subsmart/settings.yaml)")

	rootCmd.AddCommand(newServeCommand(&settingsPath))
	rootCmd.AddCommand(newMigrateCommand(&settingsPath))

	return rootCmd
}
