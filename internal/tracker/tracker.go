// Package tracker owns the delivery ledger: the per-day, per-campaign,
// per-recipient sent record that survives restarts and rolls over at
// midnight in the configured timezone.
package tracker

import (
	"context"
	"time"

	"azkarbot/internal/storage"
	"azkarbot/internal/zikr"
	logx "azkarbot/pkg/logx"
)

// Tracker is the sole reader and writer of the ledger. It keeps the ledger
// in memory and persists the full record after every mutation; persistence
// failures are logged and swallowed, so a delivery is never aborted because
// the ledger could not be written (the accepted cost is a possible repeat
// send after a restart).
//
// Not safe for concurrent use; the scheduler loop is the only caller.
type Tracker struct {
	store storage.Store // may be nil (storage disabled)
	log   logx.Logger
	loc   *time.Location

	ledger zikr.Ledger
}

func New(store storage.Store, loc *time.Location, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	t := &Tracker{store: store, log: log, loc: loc, ledger: zikr.NewLedger()}
	t.reload(context.Background())
	return t
}

// reload replaces the in-memory ledger from the store. Read once at
// startup; the tracker is the only writer afterwards.
func (t *Tracker) reload(ctx context.Context) {
	if t.store == nil {
		return
	}
	l, err := t.store.LoadLedger(ctx)
	if err != nil {
		t.log.Error("ledger load failed, starting with empty ledger", logx.Err(err))
		return
	}
	t.ledger = l
}

// Today returns the ledger's calendar date for now.
func (t *Tracker) Today(now time.Time) string {
	return zikr.DateIn(now, t.loc)
}

func (t *Tracker) IsSent(campaign string, r zikr.Recipient, today string) bool {
	return t.ledger.IsSent(campaign, r, today)
}

// Pending returns the recipients not yet served today, preserving input
// order.
func (t *Tracker) Pending(campaign string, recipients []zikr.Recipient, today string) []zikr.Recipient {
	return t.ledger.Pending(campaign, recipients, today)
}

func (t *Tracker) FullySent(campaign string, recipients []zikr.Recipient, today string) bool {
	return t.ledger.FullySent(campaign, recipients, today)
}

// MarkSent records a successful delivery and persists the ledger.
func (t *Tracker) MarkSent(ctx context.Context, campaign string, r zikr.Recipient, today string) {
	t.ledger.MarkSent(campaign, r, today)
	if t.store == nil {
		return
	}
	if err := t.store.SaveLedger(ctx, t.ledger.Clone()); err != nil {
		t.log.Error("ledger save failed, continuing with in-memory state",
			logx.String("campaign", campaign),
			logx.String("recipient", r.String()),
			logx.Err(err))
	}
}

// Audit appends a delivery outcome to the audit trail (best effort).
func (t *Tracker) Audit(ctx context.Context, e storage.AuditEntry) {
	if t.store == nil {
		return
	}
	if err := t.store.AppendAudit(ctx, e); err != nil {
		t.log.Warn("audit append failed", logx.Err(err))
	}
}
