package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Pull pending cloud-only recordings onto this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := application.Engine.ProcessAutoDownloads(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("downloaded: %d\n", res.Succeeded)
		if res.Failed > 0 {
			fmt.Printf("failed:     %d\n", res.Failed)
		}
		return nil
	},
}
