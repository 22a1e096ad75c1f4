package whatsweb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"azkarbot/internal/transport"
	logx "azkarbot/pkg/logx"
)

// perRuneDelay is the inter-character delay used for controls that drop
// fast bulk input.
const perRuneDelay = 15 * time.Millisecond

type session struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page
	log     logx.Logger
}

func (s *session) Open(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.cfg.NavTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (s *session) Find(ctx context.Context, loc transport.Locator, opt transport.FindOptions) (transport.Handle, error) {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	p := s.page.Context(ctx).Timeout(timeout)

	var el *rod.Element
	var err error
	switch loc.Kind {
	case transport.LocatorXPath:
		el, err = p.ElementX(loc.Expr)
	default:
		el, err = p.Element(loc.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", transport.ErrNotFound, loc.Kind, loc.Expr, err)
	}

	if opt.RequireClickable {
		ct := opt.ClickableTimeout
		if ct <= 0 {
			ct = 5 * time.Second
		}
		cel := el.Context(ctx).Timeout(ct)
		if err := cel.WaitVisible(); err != nil {
			return nil, fmt.Errorf("%w: %s %q not visible: %v", transport.ErrNotFound, loc.Kind, loc.Expr, err)
		}
		if _, err := cel.WaitInteractable(); err != nil {
			return nil, fmt.Errorf("%w: %s %q not interactable: %v", transport.ErrNotFound, loc.Kind, loc.Expr, err)
		}
	}

	return &handle{sess: s, el: el}, nil
}

func (s *session) PressSubmitKey(ctx context.Context) error {
	_ = ctx
	return s.page.Keyboard.Press(input.Enter)
}

func (s *session) Screenshot(ctx context.Context, tag string) (string, error) {
	if err := os.MkdirAll(s.cfg.DiagnosticsDir, 0o755); err != nil {
		return "", err
	}
	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	name := fmt.Sprintf("%s-%s.png", tag, time.Now().Format("20060102-150405"))
	path := filepath.Join(s.cfg.DiagnosticsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *session) Close() error {
	return s.browser.Close()
}

type handle struct {
	sess *session
	el   *rod.Element
}

func (h *handle) Click(ctx context.Context, method transport.ClickMethod) error {
	el := h.el.Context(ctx)
	switch method {
	case transport.ClickDirect:
		return el.Click(proto.InputMouseButtonLeft, 1)
	case transport.ClickScripted:
		_, err := el.Eval(`() => this.click()`)
		return err
	case transport.ClickPointer:
		if err := el.ScrollIntoView(); err != nil {
			return err
		}
		if err := el.Hover(); err != nil {
			return err
		}
		return h.sess.page.Context(ctx).Mouse.Click(proto.InputMouseButtonLeft, 1)
	default:
		return fmt.Errorf("unknown click method %d", method)
	}
}

func (h *handle) Type(ctx context.Context, text string, mode transport.TypeMode) error {
	el := h.el.Context(ctx)
	if mode == transport.TypeBulk {
		return el.Input(text)
	}
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return err
		}
		t := time.NewTimer(perRuneDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (h *handle) Upload(ctx context.Context, path string) error {
	return h.el.Context(ctx).SetFiles([]string{path})
}
