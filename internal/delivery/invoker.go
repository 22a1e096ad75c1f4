package delivery

import (
	"context"
	"fmt"

	"azkarbot/internal/transport"
	logx "azkarbot/pkg/logx"
)

// clickOrder is the fixed technique fallback chain. The keyboard-submit
// fallback is not part of the chain: it applies only when no send-control
// handle was resolvable at all, and is handled by the batch machine.
var clickOrder = []transport.ClickMethod{
	transport.ClickDirect,
	transport.ClickScripted,
	transport.ClickPointer,
}

// Invoker activates a resolved control, trying each technique only after
// the previous one failed, stopping at the first success.
type Invoker struct {
	log logx.Logger
}

func NewInvoker(log logx.Logger) *Invoker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Invoker{log: log}
}

func (v *Invoker) Click(ctx context.Context, h transport.Handle, control string) error {
	var last error
	for _, m := range clickOrder {
		err := h.Click(ctx, m)
		if err == nil {
			if m != transport.ClickDirect {
				v.log.Debug("click needed fallback technique",
					logx.String("control", control),
					logx.String("method", m.String()))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.log.Trace("click technique failed",
			logx.String("control", control),
			logx.String("method", m.String()),
			logx.Err(err))
		last = err
	}
	return fmt.Errorf("%s: all click techniques failed: %w", control, last)
}

func (v *Invoker) Type(ctx context.Context, h transport.Handle, control, text string, mode transport.TypeMode) error {
	if err := h.Type(ctx, text, mode); err != nil {
		return fmt.Errorf("%s: type failed: %w", control, err)
	}
	return nil
}
