package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List indexed recordings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := application.Index.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("no recordings")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tEXPIRES\tSIZE\tSOURCE\tSYNC\tCLOUD ID")
		for _, r := range recs {
			sync := string(r.CloudSyncState)
			if sync == "" {
				sync = "-"
			}
			cloudID := r.CloudRecordingID
			if cloudID == "" {
				cloudID = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				r.ID,
				r.CreatedAt.UTC().Format(time.RFC3339),
				r.ExpiresAt.UTC().Format(time.RFC3339),
				r.SizeBytes,
				r.Source,
				sync,
				cloudID,
			)
		}
		return w.Flush()
	},
}
