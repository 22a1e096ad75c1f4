package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"azkarbot/internal/storage"
	"azkarbot/internal/zikr"
	"azkarbot/pkg/logx"
)

func openStore(t *testing.T, dir string) storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "ledger.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	s := openStore(t, dir)
	tr := New(s, time.UTC, logx.Nop())
	today := tr.Today(time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC))

	tr.MarkSent(ctx, zikr.CampaignMorning, "+628111", today)
	tr.MarkSent(ctx, zikr.CampaignMorning, "+628222", today)
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// A new process sees the same ledger.
	s2 := openStore(t, dir)
	defer s2.Close()
	tr2 := New(s2, time.UTC, logx.Nop())
	if !tr2.IsSent(zikr.CampaignMorning, "+628111", today) {
		t.Fatal("restart lost a sent mark")
	}
	all := []zikr.Recipient{"+628111", "+628222"}
	if !tr2.FullySent(zikr.CampaignMorning, all, today) {
		t.Fatal("FullySent false after restart")
	}
	if tr2.FullySent(zikr.CampaignEvening, all, today) {
		t.Fatal("evening reported sent without any marks")
	}
}

func TestTrackerPendingOrder(t *testing.T) {
	t.Parallel()
	tr := New(nil, time.UTC, logx.Nop())
	today := "2026-08-30"
	all := []zikr.Recipient{"C", "A", "B"}

	tr.MarkSent(context.Background(), zikr.CampaignEvening, "A", today)
	got := tr.Pending(zikr.CampaignEvening, all, today)
	want := []zikr.Recipient{"C", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pending = %v, want %v", got, want)
	}
}

func TestTrackerTodayUsesLocation(t *testing.T) {
	t.Parallel()
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tr := New(nil, jakarta, logx.Nop())

	// 2026-08-30 22:00 UTC is already the 31st in UTC+7.
	now := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	if got := tr.Today(now); got != "2026-08-31" {
		t.Fatalf("Today = %s, want 2026-08-31", got)
	}
}

// failStore errors on every write so the swallow-and-continue contract can
// be observed.
type failStore struct{}

func (failStore) LoadLedger(context.Context) (zikr.Ledger, error) { return zikr.NewLedger(), nil }
func (failStore) SaveLedger(context.Context, zikr.Ledger) error {
	return errors.New("disk full")
}
func (failStore) AppendAudit(context.Context, storage.AuditEntry) error {
	return errors.New("disk full")
}
func (failStore) PutDedup(context.Context, string, time.Time) error { return errors.New("disk full") }
func (failStore) GetDedup(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (failStore) Close() error { return nil }

func TestTrackerSwallowsPersistenceFailures(t *testing.T) {
	t.Parallel()
	tr := New(failStore{}, time.UTC, logx.Nop())
	today := "2026-08-30"

	// Must not panic or roll back the in-memory mark.
	tr.MarkSent(context.Background(), zikr.CampaignMorning, "+628111", today)
	if !tr.IsSent(zikr.CampaignMorning, "+628111", today) {
		t.Fatal("in-memory mark rolled back on persistence failure")
	}
	tr.Audit(context.Background(), storage.AuditEntry{Campaign: "morning"})
}
