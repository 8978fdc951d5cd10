package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after defaults were filled in. Redirect it to a
file to start a new station configuration:

  ticketcap config > config/ticketcap.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.Marshal()
		if err != nil {
			return printer.Error("cannot encode configuration", err.Error())
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
