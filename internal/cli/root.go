// Package cli implements the recsync command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurasafe/recsync/internal/app"
	"github.com/aurasafe/recsync/internal/config"
	"github.com/aurasafe/recsync/internal/logging"
)

var (
	cfgFile    string
	dataDir    string
	serverURL  string
	timeoutSec int
	verbose    bool

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "recsync",
	Short: "Local-first cloud sync agent for safety audio recordings",
	Long: `recsync keeps locally captured safety recordings and cloud storage in
agreement: it maintains the on-device recording index, uploads eligible
recordings through a durable retry queue, and pulls cloud-only recordings
back onto the device.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	defer func() {
		if application != nil {
			_ = application.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to JSON config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "backend base URL")
	rootCmd.PersistentFlags().IntVarP(&timeoutSec, "timeout", "t", 0, "backend request timeout (seconds)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(downloadsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(gcCmd)
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg := config.LoadConfig()

	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.DatabasePath = filepath.Join(dataDir, "recsync.db")
	}
	if serverURL != "" {
		cfg.ServerBaseURL = serverURL
	}
	if timeoutSec > 0 {
		cfg.HTTPTimeout = time.Duration(timeoutSec) * time.Second
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var err error
	application, err = app.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return nil
}
