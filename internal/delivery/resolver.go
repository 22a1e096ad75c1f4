package delivery

import (
	"context"
	"fmt"
	"time"

	"azkarbot/internal/transport"
	logx "azkarbot/pkg/logx"
)

// Resolver locates a logical control by trying its locator strategies in
// declared order. It short-circuits on the first hit; there is no parallel
// probing, so selection order stays deterministic and testable.
type Resolver struct {
	log              logx.Logger
	presenceTimeout  time.Duration
	clickableTimeout time.Duration
}

func NewResolver(log logx.Logger, presence, clickable time.Duration) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	if presence <= 0 {
		presence = 20 * time.Second
	}
	if clickable <= 0 {
		clickable = 5 * time.Second
	}
	return &Resolver{log: log, presenceTimeout: presence, clickableTimeout: clickable}
}

// Resolve returns the first usable handle for ctl. When interactive is set,
// each strategy additionally waits for the element to become clickable.
// Exhausting all strategies yields a transport.ErrNotFound wrap; callers
// decide whether that is fatal.
func (r *Resolver) Resolve(ctx context.Context, sess transport.Session, ctl Control, interactive bool) (transport.Handle, error) {
	opt := transport.FindOptions{
		Timeout:          r.presenceTimeout,
		RequireClickable: interactive,
		ClickableTimeout: r.clickableTimeout,
	}
	for i, loc := range ctl.Locators {
		h, err := sess.Find(ctx, loc, opt)
		if err == nil {
			r.log.Debug("control resolved",
				logx.String("control", ctl.Name),
				logx.Int("strategy", i+1),
				logx.String("expr", loc.Expr))
			return h, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.log.Enabled(logx.LevelTrace) {
			r.log.Trace("locator strategy missed",
				logx.String("control", ctl.Name),
				logx.Int("strategy", i+1),
				logx.String("expr", loc.Expr),
				logx.Err(err))
		}
	}
	return nil, fmt.Errorf("%s: %w", ctl.Name, transport.ErrNotFound)
}
