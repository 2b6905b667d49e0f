package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync pass",
	Long: `Removes recordings past retention, reconciles the upload queue against
the recording index, and drains the queue until it is empty, paused, or
every remaining item is waiting out its retry delay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := application.Sync(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("state:  %s\n", snap.State)
		fmt.Printf("queued: %d\n", snap.QueueLength)
		if snap.LastError != "" {
			fmt.Printf("last error: %s\n", snap.LastError)
		}
		return nil
	},
}
