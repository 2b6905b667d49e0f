package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the recsync agent.
//
// Fields:
//   - DataDir: root directory for recordings and the local database.
//   - DatabasePath: SQLite database file holding the index and queue.
//   - ServerBaseURL: base URL of the backend cloud-sync API.
//   - HTTPTimeout: per-request timeout for backend calls.
//   - WifiOnlyUpload: upload only while on wifi.
//   - AccessToken, RefreshToken: bearer credentials for the backend API.
//   - S3Region, S3Endpoint, S3AccessKey, S3SecretKey: optional direct
//     object-storage credentials for post-download cleanup. When empty the
//     cleanup is skipped.
type Config struct {
	DataDir       string
	DatabasePath  string
	ServerBaseURL string
	HTTPTimeout   time.Duration

	WifiOnlyUpload bool

	AccessToken  string
	RefreshToken string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.DataDir = filepath.Join(home, ".recsync")
	c.DatabasePath = filepath.Join(c.DataDir, "recsync.db")
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.HTTPTimeout = 30 * time.Second
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
