package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear the upload queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued uploads, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := application.Queue.Items(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDING\tRECORDED\tSTATUS\tATTEMPTS\tNEXT RETRY\tLAST ERROR")
		for _, item := range items {
			retry := "-"
			if item.NextRetryAt != nil {
				retry = item.NextRetryAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				item.LocalRecordingID,
				item.RecordedAt.UTC().Format(time.RFC3339),
				item.Status,
				item.AttemptCount,
				retry,
				item.LastError,
			)
		}
		return w.Flush()
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued upload",
	Long: `Drops all pending uploads. Recordings themselves stay on the device and
still-eligible ones are re-queued by the next sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Engine.ClearQueue(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("queue cleared")
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
}
