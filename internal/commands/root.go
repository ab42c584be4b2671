package commands

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/finmind/banksync-service/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "banksync",
		Short:   "Bank account sync and budget suggestion service",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file for local development.
			if err := godotenv.Load(); err != nil {
				log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", ".", "directory holding an optional .env config file")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newMigrateCommand(&configPath))
	rootCmd.AddCommand(newProvidersCommand(&configPath))

	return rootCmd
}
