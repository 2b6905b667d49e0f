package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine state, queue length, and storage health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		items, err := application.Queue.Items(ctx)
		if err != nil {
			return err
		}
		recs, err := application.Index.List(ctx)
		if err != nil {
			return err
		}

		snap := application.Engine.Snapshot()

		fmt.Printf("state:       %s\n", snap.State)
		if snap.LastError != "" {
			fmt.Printf("last error:  %s\n", snap.LastError)
		}
		fmt.Printf("recordings:  %d\n", len(recs))
		fmt.Printf("queued:      %d\n", len(items))
		fmt.Printf("storage:     %s\n", application.Files.Status())
		return nil
	},
}
