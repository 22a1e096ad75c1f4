package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"azkarbot/internal/zikr"
)

const sampleYAML = `
schedule:
  timezone: Asia/Jakarta
  morning_start_hour: 5
  morning_end_hour: 10
  evening_start_hour: 17
  evening_end_hour: 21
  check_interval_seconds: 30
  recipients:
    - "+628111"
    - "+628222"
content:
  morning_payload:
    kind: text
    text: "morning zikr"
  evening_payload:
    kind: image
    image_path: /srv/zikr/evening.png
    text: "evening caption"
  include_caption: true
whatsapp:
  headless: true
  profile_dir: /var/lib/azkarbot/profile
  nav_timeout: 45s
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: /var/log/azkarbot.log
delivery:
  sends_per_minute: 6
  chat_settle: 8s
storage:
  driver: file
  path: /var/lib/azkarbot/state
alerts:
  enabled: false
breaker:
  enabled: true
  max_failures: 3
  open_timeout: 15m
maintenance:
  enabled: true
  diagnostics_max_age: 168h
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Schedule.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone = %s", cfg.Schedule.Timezone)
	}
	if got := cfg.CheckInterval(); got != 30*time.Second {
		t.Fatalf("CheckInterval = %v", got)
	}

	cams := cfg.Campaigns()
	if len(cams) != 2 {
		t.Fatalf("campaigns = %d", len(cams))
	}
	if cams[0].Name != zikr.CampaignMorning || cams[0].Payload.Kind != zikr.PayloadText {
		t.Fatalf("morning campaign = %+v", cams[0])
	}
	if cams[1].Window.StartHour != 17 || cams[1].Payload.Kind != zikr.PayloadImage {
		t.Fatalf("evening campaign = %+v", cams[1])
	}
	if cams[1].Payload.ImagePath != "/srv/zikr/evening.png" {
		t.Fatalf("evening image = %s", cams[1].Payload.ImagePath)
	}

	rs := cfg.Recipients()
	if len(rs) != 2 || rs[0] != "+628111" {
		t.Fatalf("recipients = %v", rs)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML+"\nsurprise: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	body := `{
  "schedule": {
    "timezone": "UTC",
    "morning_start_hour": 5, "morning_end_hour": 10,
    "evening_start_hour": 17, "evening_end_hour": 21,
    "recipients": ["+628111"]
  },
  "content": {
    "morning_payload": {"kind": "text", "text": "a"},
    "evening_payload": {"kind": "text", "text": "b"}
  },
  "whatsapp": {"headless": true},
  "logging": {"console": true, "file": {"enabled": false}}
}`
	m := NewManager(writeConfig(t, "config.json", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.CheckInterval(); got != 60*time.Second {
		t.Fatalf("default CheckInterval = %v, want 60s", got)
	}
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Schedule: ScheduleConfig{
				Timezone:         "UTC",
				MorningStartHour: 5, MorningEndHour: 10,
				EveningStartHour: 17, EveningEndHour: 21,
				Recipients: []string{"+628111"},
			},
			Content: ContentConfig{
				MorningPayload: PayloadConfig{Kind: "text", Text: "a"},
				EveningPayload: PayloadConfig{Kind: "text", Text: "b"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"inverted window", func(c *Config) { c.Schedule.MorningStartHour = 11 }},
		{"no recipients", func(c *Config) { c.Schedule.Recipients = []string{"  ", ""} }},
		{"unknown payload kind", func(c *Config) { c.Content.MorningPayload.Kind = "video" }},
		{"text payload without text", func(c *Config) { c.Content.MorningPayload.Text = "" }},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Path: "x"} }},
		{"storage without path", func(c *Config) { c.Storage = &StorageConfig{Driver: "file"} }},
		{"alerts without token", func(c *Config) { c.Alerts = &AlertsConfig{Enabled: true, ChatID: 7} }},
		{"bad duration", func(c *Config) { c.Breaker = &BreakerConfig{OpenTimeout: "soon"} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}
