package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"azkarbot/internal/transport"
	"azkarbot/internal/zikr"
	logx "azkarbot/pkg/logx"
)

// Sender runs batch delivery jobs. One underlying browser session serves a
// whole batch: the open/authenticate cost is amortized across recipients,
// and the session is released exactly once no matter how the batch ends.
type Sender struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	factory  transport.Factory
	controls Controls
	resolver *Resolver
	invoker  *Invoker
	log      logx.Logger
}

func NewSender(cfg Config, factory transport.Factory, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Sender{
		cfg:      cfg,
		factory:  factory,
		controls: DefaultControls(),
		resolver: NewResolver(log, cfg.FindTimeout, cfg.ClickableTimeout),
		invoker:  NewInvoker(log),
		log:      log,
	}
	s.limiter = newLimiter(cfg.SendsPerMinute)
	return s
}

func (s *Sender) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = newLimiter(cfg.SendsPerMinute)
	s.resolver = NewResolver(s.log, cfg.FindTimeout, cfg.ClickableTimeout)
	s.mu.Unlock()
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// snapshot returns everything Apply can swap. A batch takes one snapshot
// at start and uses it throughout, so a concurrent reload never changes a
// batch mid-flight. controls and invoker are immutable after NewSender.
func (s *Sender) snapshot() (Config, *rate.Limiter, *Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter, s.resolver
}

// SendTextBatch sends the same text to every recipient, in input order.
func (s *Sender) SendTextBatch(ctx context.Context, recipients []zikr.Recipient, text string) (Result, error) {
	if len(recipients) == 0 {
		return Result{}, errors.New("no recipients")
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, errors.New("text body is empty")
	}
	cfg, lim, rz := s.snapshot()
	return s.runBatch(ctx, cfg, lim, rz, recipients, func(ctx context.Context, sess transport.Session, r zikr.Recipient) (Stage, error) {
		return s.sendText(ctx, cfg, rz, sess, r, text)
	})
}

// SendImageBatch sends the same image (with optional caption) to every
// recipient, in input order.
func (s *Sender) SendImageBatch(ctx context.Context, recipients []zikr.Recipient, imagePath, caption string) (Result, error) {
	if len(recipients) == 0 {
		return Result{}, errors.New("no recipients")
	}
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("image path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return Result{}, fmt.Errorf("image file not found: %w", err)
	}
	cfg, lim, rz := s.snapshot()
	return s.runBatch(ctx, cfg, lim, rz, recipients, func(ctx context.Context, sess transport.Session, r zikr.Recipient) (Stage, error) {
		return s.sendImage(ctx, cfg, rz, sess, r, abs, caption)
	})
}

// stepFunc processes a single recipient inside an open, authenticated
// session. On failure it reports the stage the recipient stalled in.
type stepFunc func(ctx context.Context, sess transport.Session, r zikr.Recipient) (Stage, error)

func (s *Sender) runBatch(ctx context.Context, cfg Config, lim *rate.Limiter, rz *Resolver, recipients []zikr.Recipient, step stepFunc) (Result, error) {
	start := time.Now()
	var res Result

	sess, err := s.factory.NewSession(ctx)
	if err != nil {
		return res, fmt.Errorf("open session: %w", err)
	}
	// The one unconditional cleanup path: every return below goes
	// through this, so the session is released exactly once.
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			s.log.Warn("session close failed", logx.Err(cerr))
		}
	}()

	// Unopened -> Loading.
	if err := sess.Open(ctx, cfg.BaseURL); err != nil {
		s.capture(ctx, sess, "load-failed")
		return res, fmt.Errorf("open %s: %w", cfg.BaseURL, err)
	}

	// Loading -> Authenticated: the logged-in marker must appear within
	// the bounded load wait, or the whole job is fatal.
	authCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
	_, err = rz.Resolve(authCtx, sess, s.controls.LoggedInMarker, false)
	cancel()
	if err != nil {
		s.capture(ctx, sess, "auth-timeout")
		return res, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	s.log.Info("session authenticated", logx.Int("recipients", len(recipients)), logx.Duration("took", time.Since(start)))

	for i, r := range recipients {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return res, err
			}
		}
		stage, err := step(ctx, sess, r)
		if err != nil {
			// Recoverable-per-recipient: capture, report, move on.
			path := s.capture(ctx, sess, fmt.Sprintf("%s-r%02d", stage, i+1))
			s.log.Warn("recipient failed",
				logx.String("recipient", r.String()),
				logx.String("stage", string(stage)),
				logx.String("diagnostic", path),
				logx.Err(err))
			res.Failed = append(res.Failed, Failure{Recipient: r, Stage: stage, Err: err})
			continue
		}
		s.log.Info("recipient sent", logx.String("recipient", r.String()), logx.Int("index", i+1), logx.Int("total", len(recipients)))
		res.Sent = append(res.Sent, r)
	}
	return res, nil
}

func (s *Sender) sendText(ctx context.Context, cfg Config, rz *Resolver, sess transport.Session, r zikr.Recipient, text string) (Stage, error) {
	// Navigating: the send URL pre-fills the composer with the text.
	if err := sess.Open(ctx, chatURL(cfg.BaseURL, r, text)); err != nil {
		return StageNavigating, err
	}
	if err := settle(ctx, cfg.ChatSettle); err != nil {
		return StageNavigating, err
	}
	if err := s.pressSend(ctx, rz, sess); err != nil {
		return StageReady, err
	}
	if err := settle(ctx, cfg.SendSettle); err != nil {
		return StageReady, err
	}
	return StageSent, nil
}

func (s *Sender) sendImage(ctx context.Context, cfg Config, rz *Resolver, sess transport.Session, r zikr.Recipient, imagePath, caption string) (Stage, error) {
	// Navigating.
	if err := sess.Open(ctx, chatURL(cfg.BaseURL, r, "")); err != nil {
		return StageNavigating, err
	}
	if err := settle(ctx, cfg.ChatSettle); err != nil {
		return StageNavigating, err
	}

	// AttachmentOpen.
	attach, err := rz.Resolve(ctx, sess, s.controls.AttachButton, true)
	if err != nil {
		return StageAttachmentOpen, err
	}
	if err := s.invoker.Click(ctx, attach, s.controls.AttachButton.Name); err != nil {
		return StageAttachmentOpen, err
	}
	if err := settle(ctx, cfg.MenuSettle); err != nil {
		return StageAttachmentOpen, err
	}
	input, err := rz.Resolve(ctx, sess, s.controls.FileInput, false)
	if err != nil {
		return StageAttachmentOpen, err
	}

	// ContentAttached.
	if err := input.Upload(ctx, imagePath); err != nil {
		return StageContentAttached, err
	}
	if err := settle(ctx, cfg.UploadSettle); err != nil {
		return StageContentAttached, err
	}
	if caption != "" {
		// The caption field drops fast bulk input, so it is typed
		// per-rune. A missing caption field is not fatal: send
		// without the caption, as the UI still has the image staged.
		field, err := rz.Resolve(ctx, sess, s.controls.CaptionField, true)
		if err != nil {
			s.log.Warn("caption field not found, sending without caption", logx.String("recipient", r.String()))
		} else {
			if err := s.invoker.Click(ctx, field, s.controls.CaptionField.Name); err != nil {
				return StageContentAttached, err
			}
			if err := s.invoker.Type(ctx, field, s.controls.CaptionField.Name, caption, transport.TypePerRune); err != nil {
				return StageContentAttached, err
			}
		}
	}

	// Ready.
	if err := s.pressSend(ctx, rz, sess); err != nil {
		return StageReady, err
	}
	if err := settle(ctx, cfg.SendSettle); err != nil {
		return StageReady, err
	}
	return StageSent, nil
}

// pressSend activates the send control, falling back to the keyboard
// submit key only when no send control was resolvable at all.
func (s *Sender) pressSend(ctx context.Context, rz *Resolver, sess transport.Session) error {
	btn, err := rz.Resolve(ctx, sess, s.controls.SendButton, true)
	if err != nil {
		if !errors.Is(err, transport.ErrNotFound) {
			return err
		}
		s.log.Debug("send control unresolvable, trying submit key")
		return sess.PressSubmitKey(ctx)
	}
	return s.invoker.Click(ctx, btn, s.controls.SendButton.Name)
}

// capture takes a diagnostic screenshot; failures to capture are logged
// and swallowed, never masking the original error.
func (s *Sender) capture(ctx context.Context, sess transport.Session, tag string) string {
	path, err := sess.Screenshot(ctx, tag)
	if err != nil {
		s.log.Debug("diagnostic capture failed", logx.String("tag", tag), logx.Err(err))
		return ""
	}
	return path
}

func chatURL(base string, r zikr.Recipient, text string) string {
	u := strings.TrimRight(base, "/") + "/send?phone=" + url.QueryEscape(strings.TrimPrefix(r.String(), "+"))
	if text != "" {
		u += "&text=" + url.QueryEscape(text)
	}
	return u
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
