package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			RateLimitPerMin: 30,
		},
		Ledger: LedgerConfig{
			StartingCredits: 50,
			TextCost:        1,
		},
		Responder: ResponderConfig{
			DelayMS: 2000,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.relay/relay.db",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "relay",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is fine: defaults plus env make a runnable config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("RELAY_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("RELAY_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("RELAY_MODE", &c.Database.Mode)
	envStr("RELAY_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("RELAY_WEB_APP_URL", &c.Telegram.WebAppURL)
	envStr("RELAY_REPLIES_FILE", &c.Responder.RepliesFile)

	if v := os.Getenv("RELAY_OPERATOR_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id != 0 {
			c.Telegram.OperatorID = id
		}
	}
	if v := os.Getenv("RELAY_STARTING_CREDITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.Ledger.StartingCredits = n
		}
	}
	if v := os.Getenv("RELAY_METER_ASSISTED"); v != "" {
		c.Ledger.MeterAssisted = v == "true" || v == "1"
	}

	envStr("RELAY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("RELAY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("RELAY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RELAY_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}
