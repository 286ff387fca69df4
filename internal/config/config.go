// Package config defines the relay's configuration and loads it from a
// JSON5 file with environment overrides. Secrets (bot token, database DSN)
// come from the environment only and never live in the config file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration for the relay binary.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Ledger    LedgerConfig    `json:"ledger"`
	Responder ResponderConfig `json:"responder"`
	Database  DatabaseConfig  `json:"database"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token string `json:"-"` // from env RELAY_TELEGRAM_TOKEN only
	// OperatorID is the privileged chat that receives forwards and may run
	// admin commands.
	OperatorID int64 `json:"operator_id,omitempty"`
	// RateLimitPerMin caps inbound messages per user per minute; 0 disables.
	RateLimitPerMin int `json:"rate_limit_per_min,omitempty"`
	// WebAppURL is the selection surface opened by the chat button.
	WebAppURL string `json:"web_app_url,omitempty"`
}

// LedgerConfig configures credit policy.
type LedgerConfig struct {
	StartingCredits int64 `json:"starting_credits,omitempty"`
	TextCost        int64 `json:"text_cost,omitempty"`
	// MeterAssisted debits assisted-mode messages like auto-mode ones.
	MeterAssisted bool `json:"meter_assisted,omitempty"`
}

// ResponderConfig configures the automated responder.
type ResponderConfig struct {
	DelayMS     int    `json:"delay_ms,omitempty"`
	RepliesFile string `json:"replies_file,omitempty"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`              // from env RELAY_POSTGRES_DSN only
	Mode        string `json:"mode,omitempty"` // "standalone" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"` // host:port for OTLP/HTTP
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// IsManagedMode reports whether the relay runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// ResponderDelay returns the configured presence delay.
func (c *Config) ResponderDelay() time.Duration {
	return time.Duration(c.Responder.DelayMS) * time.Millisecond
}

// SQLitePath returns the expanded standalone database path.
func (c *Config) SQLitePath() string {
	return ExpandHome(c.Database.SQLitePath)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
