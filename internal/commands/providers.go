package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finmind/banksync-service/internal/config"
)

func newProvidersCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the registered bank data providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			for _, name := range newRegistry(cfg).Providers() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
