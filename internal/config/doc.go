// Package config loads runtime configuration for the recsync agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   data directory for recordings and the local database
//	-s string   base URL of the backend cloud-sync API
//	-t int      backend request timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "data_dir": "/var/lib/recsync",
//	  "server_base_url": "https://api.example.com",
//	  "http_timeout": "30s",
//	  "wifi_only_upload": true,
//	  "s3_endpoint": "http://127.0.0.1:9000"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
