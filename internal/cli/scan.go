package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TreasuredLabs/TreasuredLabs/internal/app"
)

var scanCmd = &cobra.Command{
	Use:   "scan <contract>",
	Short: "Run a one-off contract risk scan and print the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("contract address is required")
		}
		return getApp().Scan(cmd.Context(), app.ScanOptions{ContractID: args[0]})
	},
}
