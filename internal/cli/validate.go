package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridline/gridline/internal/config"
)

// NewValidateCommand creates the validate command: parse the config,
// report problems, touch nothing.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate",
		Short:         "Validate the configuration file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d series)\n",
				rootOpts.ConfigPath, len(cfg.Series))
			return nil
		},
	}
}
