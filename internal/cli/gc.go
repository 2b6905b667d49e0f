package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove expired recordings and stale index entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := application.GC(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("expired removed: %d\n", report.Expired)
		fmt.Printf("missing removed: %d\n", report.Missing)
		return nil
	},
}
