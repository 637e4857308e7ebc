package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("unexpected default listen addr %q", cfg.Server.ListenAddr)
	}
	if cfg.Pacing.EmailsPerHour != 25 || cfg.Pacing.MinWindowHours != 2 || cfg.Pacing.MaxWindowHours != 3 {
		t.Errorf("unexpected pacing defaults %+v", cfg.Pacing)
	}
	if cfg.Dispatch.Workers != 4 {
		t.Errorf("unexpected default workers %d", cfg.Dispatch.Workers)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `
server:
  listen_addr: ":9000"
  base_url: "https://mail.example.com"
smtp:
  host: smtp.example.com
  port: 465
  ssl: true
  from_email: hello@example.com
dispatch:
  workers: 8
  poll_interval: 10s
pacing:
  emails_per_hour: 50
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("expected override, got %q", cfg.Server.ListenAddr)
	}
	if !cfg.SMTP.SSL || cfg.SMTP.Port != 465 {
		t.Errorf("smtp settings not applied: %+v", cfg.SMTP)
	}
	if cfg.Dispatch.PollInterval != 10*time.Second {
		t.Errorf("expected 10s poll interval, got %v", cfg.Dispatch.PollInterval)
	}
	if cfg.Pacing.EmailsPerHour != 50 {
		t.Errorf("expected pacing override, got %v", cfg.Pacing.EmailsPerHour)
	}
	// Untouched settings keep their defaults.
	if cfg.Pacing.MinWindowHours != 2 {
		t.Errorf("expected default min window, got %v", cfg.Pacing.MinWindowHours)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing from_email": `
smtp:
  host: smtp.example.com
`,
		"bad pacing window": `
smtp:
  from_email: hello@example.com
pacing:
  min_window_hours: 5
  max_window_hours: 2
`,
		"dkim without key": `
smtp:
  from_email: hello@example.com
dkim:
  enabled: true
  domain: example.com
`,
	}

	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
