package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/aurasafe/recsync/internal/flagx"
	"github.com/aurasafe/recsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	DataDir       string         `json:"data_dir"`
	DatabasePath  string         `json:"database_path"`
	ServerBaseURL string         `json:"server_base_url"`
	HTTPTimeout   timex.Duration `json:"http_timeout"`

	WifiOnlyUpload bool `json:"wifi_only_upload"`

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	S3Region    string `json:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flag. Without the flag nothing is loaded. Read or unmarshal
// errors panic; configuration problems should stop startup.
//
// Zero-valued JSON fields keep the defaults, except WifiOnlyUpload which the
// file sets directly.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.ServerBaseURL != "" {
		cfg.ServerBaseURL = jc.ServerBaseURL
	}
	if jc.HTTPTimeout.Duration != 0 {
		cfg.HTTPTimeout = time.Duration(jc.HTTPTimeout.Duration)
	}
	cfg.WifiOnlyUpload = jc.WifiOnlyUpload

	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.RefreshToken != "" {
		cfg.RefreshToken = jc.RefreshToken
	}

	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
}
