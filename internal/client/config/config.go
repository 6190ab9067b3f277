package config

import "time"

// Config holds runtime settings for the GhostTalk client.
//
// Fields:
//   - ServerURL: base URL of the backend REST API.
//   - RealtimeURL: URL of the realtime WebSocket endpoint.
//   - DataDir: directory for the durable client database; empty means the
//     OS user config directory is used.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - RevalidateTimeout: budget for the background session revalidation.
//   - ReconnectDelay: constant backoff between realtime reconnect attempts.
type Config struct {
	ServerURL           string
	RealtimeURL         string
	DataDir             string
	OnlineCheckInterval time.Duration
	RevalidateTimeout   time.Duration
	ReconnectDelay      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "https://api.ghosttalk.app"
	c.RealtimeURL = "wss://api.ghosttalk.app/rt"
	c.DataDir = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.RevalidateTimeout = 3 * time.Second
	c.ReconnectDelay = time.Second
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
