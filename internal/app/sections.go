package app

import (
	"time"

	"azkarbot/internal/adapters/whatsweb"
	"azkarbot/internal/alert"
	"azkarbot/internal/config"
	"azkarbot/internal/delivery"
	"azkarbot/internal/scheduler"
	"azkarbot/internal/storage"
	"azkarbot/pkg/logx"
)

// Mapping from the file-facing config sections to each component's
// resolved config. Duration fields arrive as strings and are parsed
// here; Validate() has already rejected malformed ones, so parse
// errors at this point only happen for configs that bypassed it.

func logxConfig(c *config.Config) logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func storageConfig(c *config.Config) (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func whatswebConfig(c *config.Config) (whatsweb.Config, error) {
	nav, err := config.ParseDurationField("whatsapp.nav_timeout", c.WhatsApp.NavTimeout)
	if err != nil {
		return whatsweb.Config{}, err
	}
	return whatsweb.Config{
		Headless:       c.WhatsApp.Headless,
		ProfileDir:     c.WhatsApp.ProfileDir,
		Bin:            c.WhatsApp.BrowserBin,
		NavTimeout:     nav,
		DiagnosticsDir: c.WhatsApp.DiagnosticsDir,
		WindowSize:     c.WhatsApp.WindowSize,
		UserAgent:      c.WhatsApp.UserAgent,
	}, nil
}

func deliveryConfig(c *config.Config) (delivery.Config, error) {
	var out delivery.Config
	d := c.Delivery
	if d == nil {
		return out, nil
	}
	out.BaseURL = d.BaseURL
	out.SendsPerMinute = d.SendsPerMinute
	for _, f := range []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"delivery.load_timeout", d.LoadTimeout, &out.LoadTimeout},
		{"delivery.find_timeout", d.FindTimeout, &out.FindTimeout},
		{"delivery.clickable_timeout", d.ClickableTimeout, &out.ClickableTimeout},
		{"delivery.chat_settle", d.ChatSettle, &out.ChatSettle},
		{"delivery.menu_settle", d.MenuSettle, &out.MenuSettle},
		{"delivery.upload_settle", d.UploadSettle, &out.UploadSettle},
		{"delivery.send_settle", d.SendSettle, &out.SendSettle},
	} {
		v, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return delivery.Config{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func alertConfig(c *config.Config) (alert.Config, error) {
	if c.Alerts == nil {
		return alert.Config{}, nil
	}
	dedup, err := config.ParseDurationField("alerts.dedup_window", c.Alerts.DedupWindow)
	if err != nil {
		return alert.Config{}, err
	}
	return alert.Config{
		Enabled:     c.Alerts.Enabled,
		Token:       c.Alerts.Token,
		ChatID:      c.Alerts.ChatID,
		RatePerSec:  c.Alerts.RatePerSec,
		DedupWindow: dedup,
		QueueSize:   c.Alerts.QueueSize,
	}, nil
}

func schedulerConfig(c *config.Config) (scheduler.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return scheduler.Config{}, err
	}
	out := scheduler.Config{
		Location:       loc,
		CheckInterval:  c.CheckInterval(),
		Campaigns:      c.Campaigns(),
		Recipients:     c.Recipients(),
		IncludeCaption: c.Content.IncludeCaption,
	}
	if b := c.Breaker; b != nil {
		open, err := config.ParseDurationField("breaker.open_timeout", b.OpenTimeout)
		if err != nil {
			return scheduler.Config{}, err
		}
		out.Breaker = scheduler.BreakerConfig{
			Enabled:     b.Enabled,
			MaxFailures: b.MaxFailures,
			OpenTimeout: open,
		}
	}
	if m := c.Maintenance; m != nil {
		maxAge, err := config.ParseDurationField("maintenance.diagnostics_max_age", m.DiagnosticsMaxAge)
		if err != nil {
			return scheduler.Config{}, err
		}
		diagDir := c.WhatsApp.DiagnosticsDir
		if diagDir == "" {
			diagDir = "./diagnostics"
		}
		out.Maintenance = scheduler.MaintenanceConfig{
			Enabled:           m.Enabled,
			PruneCron:         m.PruneCron,
			DiagnosticsDir:    diagDir,
			DiagnosticsMaxAge: maxAge,
			SummaryCron:       m.SummaryCron,
		}
	}
	return out, nil
}
