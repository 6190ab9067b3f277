// Package config loads runtime configuration for the GhostTalk client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend REST API
//	-w string   URL of the realtime WebSocket endpoint
//	-d string   directory for the durable client database
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://api.ghosttalk.app",
//	  "realtime_url": "wss://api.ghosttalk.app/rt",
//	  "data_dir": "/home/me/.config/ghosttalk",
//	  "online_check_interval": "3s",
//	  "revalidate_timeout": "3s",
//	  "reconnect_delay": "1s"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
