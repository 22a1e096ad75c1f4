// Package whatsweb is the go-rod implementation of the transport
// contracts: it launches a Chromium with a persistent user-data-dir (so a
// scanned WhatsApp Web login survives restarts) and drives the page.
package whatsweb

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"azkarbot/internal/transport"
	logx "azkarbot/pkg/logx"
)

type Config struct {
	Headless   bool
	ProfileDir string
	// Bin overrides browser binary discovery when set.
	Bin string
	// NavTimeout bounds Open (navigation + load).
	NavTimeout time.Duration
	// DiagnosticsDir receives failure screenshots.
	DiagnosticsDir string
	WindowSize     string // "WxH", default 1280,800
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ProfileDir) == "" {
		c.ProfileDir = "./whatsapp-profile"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if strings.TrimSpace(c.DiagnosticsDir) == "" {
		c.DiagnosticsDir = "./diagnostics"
	}
	if strings.TrimSpace(c.WindowSize) == "" {
		c.WindowSize = "1280,800"
	}
	return c
}

// Factory opens rod-backed sessions.
type Factory struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
}

func NewFactory(cfg Config, log logx.Logger) *Factory {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Factory{cfg: cfg.withDefaults(), log: log}
}

// Apply swaps the browser settings; sessions already open keep the
// settings they were created with.
func (f *Factory) Apply(cfg Config) {
	f.mu.Lock()
	f.cfg = cfg.withDefaults()
	f.mu.Unlock()
}

func (f *Factory) NewSession(ctx context.Context) (transport.Session, error) {
	f.mu.Lock()
	cfg := f.cfg
	f.mu.Unlock()

	profile, err := filepath.Abs(cfg.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}

	l := launcher.New().
		Headless(cfg.Headless).
		UserDataDir(profile).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-extensions").
		Set("window-size", strings.ReplaceAll(cfg.WindowSize, "x", ","))
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	f.log.Debug("browser session opened",
		logx.Bool("headless", cfg.Headless),
		logx.String("profile", profile))

	return &session{cfg: cfg, browser: browser, page: page, log: f.log}, nil
}
