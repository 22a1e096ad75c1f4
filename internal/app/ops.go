package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"azkarbot/internal/delivery"
	"azkarbot/internal/runtime/supervisor"
	"azkarbot/internal/scheduler"
	"azkarbot/internal/zikr"
	"azkarbot/pkg/logx"
)

// Authenticate checks the saved browser profile and, if it is not
// logged in, waits up to timeout for the operator to scan the QR code
// (a screenshot of it lands in the diagnostics directory when the
// browser runs headless).
func (a *App) Authenticate(ctx context.Context, timeout time.Duration) error {
	ok, err := a.probe.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("auth check: %w", err)
	}
	if ok {
		a.log.Info("already authenticated")
		return nil
	}
	a.log.Info("not authenticated, waiting for QR scan",
		logx.Duration("timeout", timeout))
	ok, err = a.probe.WaitForAuthentication(ctx, timeout)
	if err != nil {
		return fmt.Errorf("wait for authentication: %w", err)
	}
	if !ok {
		return fmt.Errorf("not authenticated after %s", timeout)
	}
	a.log.Info("authenticated, profile saved")
	return nil
}

// SendNow runs one campaign immediately, ignoring its window but
// honoring the ledger.
func (a *App) SendNow(ctx context.Context, campaign string) error {
	return a.sched.RunNow(ctx, campaign)
}

// SendAdhoc delivers a one-off message outside the scheduler: no window
// check and no ledger marks. Exactly one of text or imagePath must be
// set; with both, text becomes the image caption.
func (a *App) SendAdhoc(ctx context.Context, recipients []string, text, imagePath string) error {
	rs := make([]zikr.Recipient, 0, len(recipients))
	for _, r := range recipients {
		rs = append(rs, zikr.Recipient(r))
	}
	rs = zikr.NormalizeRecipients(rs)
	if len(rs) == 0 {
		return errors.New("no recipients")
	}

	var (
		res delivery.Result
		err error
	)
	if imagePath != "" {
		res, err = a.sender.SendImageBatch(ctx, rs, imagePath, text)
	} else {
		res, err = a.sender.SendTextBatch(ctx, rs, text)
	}
	if err != nil {
		return err
	}
	for _, f := range res.Failed {
		a.log.Warn("ad-hoc send failed",
			logx.String("recipient", f.Recipient.String()),
			logx.String("stage", string(f.Stage)),
			logx.Err(f.Err))
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d recipients failed", len(res.Failed), len(rs))
	}
	return nil
}

// WriteStatus dumps the scheduler status and supervised goroutine
// counters as JSON.
func (a *App) WriteStatus(w io.Writer) error {
	st := struct {
		Scheduler  scheduler.Status    `json:"scheduler"`
		Goroutines supervisor.Counters `json:"goroutines"`
	}{
		Scheduler:  a.sched.Snapshot(),
		Goroutines: a.sup.Counters(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// Done is closed when the supervised goroutine group dies on its own,
// from a panic or a fatal error in any supervised goroutine. Err then
// reports the first error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}
