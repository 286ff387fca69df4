package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.StartingCredits != 50 {
		t.Errorf("starting credits = %d, want 50", cfg.Ledger.StartingCredits)
	}
	if cfg.Database.Mode != "standalone" {
		t.Errorf("mode = %q, want standalone", cfg.Database.Mode)
	}
	if cfg.ResponderDelay() != 2*time.Second {
		t.Errorf("delay = %v, want 2s", cfg.ResponderDelay())
	}
}

func TestLoadJSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// trailing commas and comments are fine
		telegram: { operator_id: 12345, },
		ledger: { starting_credits: 100, meter_assisted: true },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.OperatorID != 12345 {
		t.Errorf("operator id = %d", cfg.Telegram.OperatorID)
	}
	if cfg.Ledger.StartingCredits != 100 || !cfg.Ledger.MeterAssisted {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	// Unset fields keep defaults.
	if cfg.Ledger.TextCost != 1 {
		t.Errorf("text cost = %d, want default 1", cfg.Ledger.TextCost)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("RELAY_OPERATOR_ID", "777")
	t.Setenv("RELAY_MODE", "managed")
	t.Setenv("RELAY_POSTGRES_DSN", "postgres://relay@localhost/relay")
	t.Setenv("RELAY_METER_ASSISTED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.OperatorID != 777 {
		t.Errorf("operator id = %d", cfg.Telegram.OperatorID)
	}
	if !cfg.IsManagedMode() {
		t.Error("expected managed mode with RELAY_MODE + DSN set")
	}
	if !cfg.Ledger.MeterAssisted {
		t.Error("expected meter_assisted from env")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/.relay/relay.db", filepath.Join(home, ".relay/relay.db")},
		{"~", home},
		{"/abs/path.db", "/abs/path.db"},
		{"relative.db", "relative.db"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
