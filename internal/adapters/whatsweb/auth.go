package whatsweb

import (
	"context"
	"time"

	"azkarbot/internal/transport"
	logx "azkarbot/pkg/logx"
)

var (
	loggedInMarker = transport.CSS("#side")
	qrCanvas       = transport.CSS("canvas[aria-label='Scan me!'], canvas[aria-label='Scan this code on your phone to log in']")
)

// Probe checks and waits for WhatsApp Web authentication using a
// short-lived session of its own.
type Probe struct {
	factory *Factory
	baseURL string
	log     logx.Logger
}

var _ transport.AuthProbe = (*Probe)(nil)

func NewProbe(factory *Factory, baseURL string, log logx.Logger) *Probe {
	if log.IsZero() {
		log = logx.Nop()
	}
	if baseURL == "" {
		baseURL = "https://web.whatsapp.com"
	}
	return &Probe{factory: factory, baseURL: baseURL, log: log}
}

// IsAuthenticated opens the service root and looks for the logged-in
// marker. When a QR code is on screen instead, a screenshot is captured so
// the operator can scan it from the diagnostics directory.
func (p *Probe) IsAuthenticated(ctx context.Context) (bool, error) {
	sess, err := p.factory.NewSession(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Open(ctx, p.baseURL); err != nil {
		return false, err
	}

	if _, err := sess.Find(ctx, loggedInMarker, transport.FindOptions{Timeout: 25 * time.Second}); err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if _, err := sess.Find(ctx, qrCanvas, transport.FindOptions{Timeout: 5 * time.Second}); err == nil {
		if path, serr := sess.Screenshot(ctx, "qr-code"); serr == nil {
			p.log.Info("not authenticated, QR code captured", logx.String("path", path))
		}
		return false, nil
	}
	p.log.Warn("uncertain authentication state: neither marker nor QR code found")
	return false, nil
}

// WaitForAuthentication keeps one session open until the logged-in marker
// appears (the user scanned the QR code) or the timeout elapses.
func (p *Probe) WaitForAuthentication(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	sess, err := p.factory.NewSession(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Open(ctx, p.baseURL); err != nil {
		return false, err
	}
	if path, serr := sess.Screenshot(ctx, "qr-wait"); serr == nil {
		p.log.Info("waiting for QR scan", logx.String("qr", path), logx.Duration("timeout", timeout))
	}

	if _, err := sess.Find(ctx, loggedInMarker, transport.FindOptions{Timeout: timeout}); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}
