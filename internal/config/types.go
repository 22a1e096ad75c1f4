package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"azkarbot/internal/zikr"
)

// Config is the root of the YAML/JSON configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Optional sections are pointers so an omitted block is distinguishable
// from an explicit zero value.
type Config struct {
	Schedule ScheduleConfig `json:"schedule"`
	Content  ContentConfig  `json:"content"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`

	Delivery    *DeliveryConfig    `json:"delivery,omitempty"`
	Storage     *StorageConfig     `json:"storage,omitempty"`
	Alerts      *AlertsConfig      `json:"alerts,omitempty"`
	Breaker     *BreakerConfig     `json:"breaker,omitempty"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

// ScheduleConfig holds the time windows and recipient list.
type ScheduleConfig struct {
	Timezone string `json:"timezone"`

	MorningStartHour int `json:"morning_start_hour"`
	MorningEndHour   int `json:"morning_end_hour"`
	EveningStartHour int `json:"evening_start_hour"`
	EveningEndHour   int `json:"evening_end_hour"`

	// CheckIntervalSeconds is the fallback poll interval used when no
	// window boundary is ahead.
	CheckIntervalSeconds int `json:"check_interval_seconds,omitempty"`

	Recipients []string `json:"recipients"`
}

// PayloadConfig describes one message payload. Kind selects which of
// the other fields matter: "text" uses Text as the message body,
// "image" uses ImagePath plus Text as the optional caption.
type PayloadConfig struct {
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

type ContentConfig struct {
	MorningPayload PayloadConfig `json:"morning_payload"`
	EveningPayload PayloadConfig `json:"evening_payload"`

	// IncludeCaption types the image caption before sending. Ignored
	// for text payloads.
	IncludeCaption bool `json:"include_caption,omitempty"`
}

type WhatsAppConfig struct {
	Headless   bool   `json:"headless"`
	ProfileDir string `json:"profile_dir,omitempty"`
	// BrowserBin overrides browser binary discovery.
	BrowserBin     string `json:"browser_bin,omitempty"`
	NavTimeout     string `json:"nav_timeout,omitempty"`
	DiagnosticsDir string `json:"diagnostics_dir,omitempty"`
	WindowSize     string `json:"window_size,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

type DeliveryConfig struct {
	BaseURL          string `json:"base_url,omitempty"`
	LoadTimeout      string `json:"load_timeout,omitempty"`
	FindTimeout      string `json:"find_timeout,omitempty"`
	ClickableTimeout string `json:"clickable_timeout,omitempty"`
	ChatSettle       string `json:"chat_settle,omitempty"`
	MenuSettle       string `json:"menu_settle,omitempty"`
	UploadSettle     string `json:"upload_settle,omitempty"`
	SendSettle       string `json:"send_settle,omitempty"`
	SendsPerMinute   int    `json:"sends_per_minute,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Driver is "file" or "sqlite". Empty disables persistence.
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type AlertsConfig struct {
	Enabled     bool    `json:"enabled"`
	Token       string  `json:"token,omitempty"`
	ChatID      int64   `json:"chat_id,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	DedupWindow string  `json:"dedup_window,omitempty"`
	QueueSize   int     `json:"queue_size,omitempty"`
}

type BreakerConfig struct {
	Enabled     bool   `json:"enabled"`
	MaxFailures uint32 `json:"max_failures,omitempty"`
	OpenTimeout string `json:"open_timeout,omitempty"`
}

type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// PruneCron schedules diagnostics cleanup, standard cron syntax.
	PruneCron         string `json:"prune_cron,omitempty"`
	DiagnosticsMaxAge string `json:"diagnostics_max_age,omitempty"`
	// SummaryCron schedules the daily delivery summary.
	SummaryCron string `json:"summary_cron,omitempty"`
}

// ---- derived accessors ----

// Location resolves the configured timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// CheckInterval returns the fallback poll interval with the default
// applied.
func (c *Config) CheckInterval() time.Duration {
	if c.Schedule.CheckIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Schedule.CheckIntervalSeconds) * time.Second
}

// Campaigns maps the schedule and content sections onto the two fixed
// campaigns.
func (c *Config) Campaigns() []zikr.Campaign {
	return []zikr.Campaign{
		{
			Name:    zikr.CampaignMorning,
			Window:  zikr.Window{StartHour: c.Schedule.MorningStartHour, EndHour: c.Schedule.MorningEndHour},
			Payload: c.Content.MorningPayload.toPayload(),
		},
		{
			Name:    zikr.CampaignEvening,
			Window:  zikr.Window{StartHour: c.Schedule.EveningStartHour, EndHour: c.Schedule.EveningEndHour},
			Payload: c.Content.EveningPayload.toPayload(),
		},
	}
}

// Recipients returns the normalized recipient list in config order.
func (c *Config) Recipients() []zikr.Recipient {
	rs := make([]zikr.Recipient, 0, len(c.Schedule.Recipients))
	for _, r := range c.Schedule.Recipients {
		rs = append(rs, zikr.Recipient(r))
	}
	return zikr.NormalizeRecipients(rs)
}

func (p PayloadConfig) toPayload() zikr.Payload {
	return zikr.Payload{
		Kind:      zikr.PayloadKind(strings.ToLower(strings.TrimSpace(p.Kind))),
		Text:      p.Text,
		ImagePath: p.ImagePath,
	}
}

// Validate rejects configs the scheduler cannot safely run with.
// Payload file existence is deliberately not checked here: image files
// may appear and disappear between ticks, so the delivery layer checks
// at send time.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	for _, cam := range c.Campaigns() {
		if err := cam.Window.Validate(); err != nil {
			return fmt.Errorf("%s window: %w", cam.Name, err)
		}
		if err := cam.Payload.Validate(); err != nil {
			return fmt.Errorf("%s payload: %w", cam.Name, err)
		}
	}
	if len(c.Recipients()) == 0 {
		return errors.New("schedule.recipients: at least one recipient is required")
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if strings.TrimSpace(c.Storage.Driver) != "" && strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path: required when a driver is set")
		}
	}
	if c.Alerts != nil && c.Alerts.Enabled {
		if strings.TrimSpace(c.Alerts.Token) == "" {
			return errors.New("alerts.token: required when alerts are enabled")
		}
		if c.Alerts.ChatID == 0 {
			return errors.New("alerts.chat_id: required when alerts are enabled")
		}
	}
	// Fail early on obviously bad duration strings so a reload cannot
	// commit a config that later breaks section conversion.
	durs := map[string]string{}
	if c.Delivery != nil {
		durs["delivery.load_timeout"] = c.Delivery.LoadTimeout
		durs["delivery.find_timeout"] = c.Delivery.FindTimeout
		durs["delivery.clickable_timeout"] = c.Delivery.ClickableTimeout
		durs["delivery.chat_settle"] = c.Delivery.ChatSettle
		durs["delivery.menu_settle"] = c.Delivery.MenuSettle
		durs["delivery.upload_settle"] = c.Delivery.UploadSettle
		durs["delivery.send_settle"] = c.Delivery.SendSettle
	}
	durs["whatsapp.nav_timeout"] = c.WhatsApp.NavTimeout
	if c.Storage != nil {
		durs["storage.busy_timeout"] = c.Storage.BusyTimeout
	}
	if c.Alerts != nil {
		durs["alerts.dedup_window"] = c.Alerts.DedupWindow
	}
	if c.Breaker != nil {
		durs["breaker.open_timeout"] = c.Breaker.OpenTimeout
	}
	if c.Maintenance != nil {
		durs["maintenance.diagnostics_max_age"] = c.Maintenance.DiagnosticsMaxAge
	}
	for path, raw := range durs {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}
