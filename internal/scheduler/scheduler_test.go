package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"azkarbot/internal/delivery"
	"azkarbot/internal/tracker"
	"azkarbot/internal/zikr"
	"azkarbot/pkg/logx"
)

type sendCall struct {
	kind       string
	recipients []zikr.Recipient
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	// fail lists recipients to report as failed; err makes the whole
	// batch fail fatally.
	fail map[zikr.Recipient]bool
	err  error
}

func (f *fakeSender) record(kind string, rs []zikr.Recipient) (delivery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{kind: kind, recipients: append([]zikr.Recipient(nil), rs...)})
	if f.err != nil {
		return delivery.Result{}, f.err
	}
	var res delivery.Result
	for _, r := range rs {
		if f.fail[r] {
			res.Failed = append(res.Failed, delivery.Failure{Recipient: r, Stage: delivery.StageNavigating, Err: errors.New("stalled")})
			continue
		}
		res.Sent = append(res.Sent, r)
	}
	return res, nil
}

func (f *fakeSender) SendTextBatch(_ context.Context, rs []zikr.Recipient, _ string) (delivery.Result, error) {
	return f.record("text", rs)
}

func (f *fakeSender) SendImageBatch(_ context.Context, rs []zikr.Recipient, _ string, _ string) (delivery.Result, error) {
	return f.record("image", rs)
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAlerter struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeAlerter) Alertf(key, format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key+": "+fmt.Sprintf(format, args...))
}

func testServiceConfig() Config {
	return Config{
		Location:      time.UTC,
		CheckInterval: 30 * time.Second,
		Campaigns: []zikr.Campaign{
			{Name: zikr.CampaignMorning, Window: zikr.Window{StartHour: 5, EndHour: 10}, Payload: zikr.Payload{Kind: zikr.PayloadText, Text: "morning zikr"}},
			{Name: zikr.CampaignEvening, Window: zikr.Window{StartHour: 17, EndHour: 21}, Payload: zikr.Payload{Kind: zikr.PayloadText, Text: "evening zikr"}},
		},
		Recipients: []zikr.Recipient{"+628111", "+628222"},
	}
}

func newTestService(cfg Config, sender Sender) (*Service, *fakeAlerter, *tracker.Tracker) {
	tr := tracker.New(nil, time.UTC, logx.Nop())
	al := &fakeAlerter{}
	s := New(cfg, tr, sender, al, logx.Nop())
	return s, al, tr
}

func fixedNow(hour, min int) func() time.Time {
	return func() time.Time { return time.Date(2026, 8, 30, hour, min, 0, 0, time.UTC) }
}

func TestTickSendsOpenWindowAndSleepsToNext(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, tr := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(6, 0)

	wakeup := s.tick(context.Background())

	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d, want 1", n)
	}
	if got := sender.calls[0]; got.kind != "text" || len(got.recipients) != 2 {
		t.Fatalf("call = %+v, want text batch to both recipients", got)
	}
	today := tr.Today(s.now())
	if !tr.FullySent(zikr.CampaignMorning, testServiceConfig().Recipients, today) {
		t.Fatal("morning not fully marked after successful batch")
	}
	if tr.FullySent(zikr.CampaignEvening, testServiceConfig().Recipients, today) {
		t.Fatal("evening marked without a send")
	}
	if want := time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC); !wakeup.Equal(want) {
		t.Fatalf("wakeup = %v, want %v", wakeup, want)
	}
}

func TestTickIdempotentWithinWindow(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, _ := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(6, 0)

	s.tick(context.Background())
	s.tick(context.Background())

	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d, want 1 (second tick has nothing pending)", n)
	}
}

func TestTickOutsideAnyWindow(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, _ := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(12, 0)

	wakeup := s.tick(context.Background())
	if n := sender.callCount(); n != 0 {
		t.Fatalf("sender calls = %d, want 0 outside windows", n)
	}
	if want := time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC); !wakeup.Equal(want) {
		t.Fatalf("wakeup = %v, want evening start", wakeup)
	}
}

func TestTickPartialFailureLeavesRecipientPending(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{fail: map[zikr.Recipient]bool{"+628222": true}}
	s, al, tr := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(6, 0)

	s.tick(context.Background())

	today := tr.Today(s.now())
	if !tr.IsSent(zikr.CampaignMorning, "+628111", today) {
		t.Fatal("successful recipient not marked")
	}
	if tr.IsSent(zikr.CampaignMorning, "+628222", today) {
		t.Fatal("failed recipient marked as sent")
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	if len(al.keys) == 0 {
		t.Fatal("no alert for recipient failures")
	}
}

func TestRunNowIgnoresWindow(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, tr := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(12, 0)

	if err := s.RunNow(context.Background(), zikr.CampaignMorning); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d, want 1", n)
	}
	today := tr.Today(s.now())
	if !tr.FullySent(zikr.CampaignMorning, testServiceConfig().Recipients, today) {
		t.Fatal("RunNow did not mark the ledger")
	}

	// The ledger still applies: a second RunNow has nothing to do.
	if err := s.RunNow(context.Background(), zikr.CampaignMorning); err != nil {
		t.Fatalf("RunNow again: %v", err)
	}
	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d after repeat, want 1", n)
	}
}

func TestRunNowUnknownCampaign(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(testServiceConfig(), &fakeSender{})
	if err := s.RunNow(context.Background(), "midnight"); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
}

func TestBreakerOpensAfterFatalBatches(t *testing.T) {
	t.Parallel()
	cfg := testServiceConfig()
	cfg.Breaker = BreakerConfig{Enabled: true, MaxFailures: 1, OpenTimeout: time.Hour}
	sender := &fakeSender{err: errors.New("browser would not start")}
	s, al, _ := newTestService(cfg, sender)
	s.now = fixedNow(6, 0)

	s.tick(context.Background())
	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d, want 1", n)
	}

	// The breaker is open now: the next tick must not reach the sender.
	s.tick(context.Background())
	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d after open breaker, want still 1", n)
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	var sawOpen bool
	for _, k := range al.keys {
		if len(k) >= len("breaker-open") && k[:len("breaker-open")] == "breaker-open" {
			sawOpen = true
		}
	}
	if !sawOpen {
		t.Fatalf("alerts = %v, want a breaker-open alert", al.keys)
	}
}

func TestSafeTickRecoversPanic(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(testServiceConfig(), &fakeSender{})
	s.now = fixedNow(6, 0)
	// A nil tracker makes tick panic; safeTick must turn that into a
	// fallback wakeup instead of crashing the loop.
	s.tracker = nil

	wakeup := s.safeTick(context.Background())
	if want := s.now().Add(30 * time.Second); !wakeup.Equal(want) {
		t.Fatalf("wakeup = %v, want fallback %v", wakeup, want)
	}
}

func TestApplySwapsCampaigns(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, _ := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(6, 0)

	cfg := testServiceConfig()
	cfg.Campaigns[0].Payload = zikr.Payload{Kind: zikr.PayloadImage, ImagePath: "/srv/zikr/morning.png", Text: "caption"}
	cfg.IncludeCaption = true
	s.Apply(cfg)

	s.tick(context.Background())
	if n := sender.callCount(); n != 1 {
		t.Fatalf("sender calls = %d, want 1", n)
	}
	if got := sender.calls[0].kind; got != "image" {
		t.Fatalf("kind = %s, want image after Apply", got)
	}
}

func TestApplyDuringRunIsSafe(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _, _ := newTestService(testServiceConfig(), sender)
	s.now = fixedNow(12, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Run starts the maintenance runner from its own goroutine; Apply
	// arrives from the config fanout. Run under -race to catch any
	// unsynchronized handoff between the two.
	for i := 0; i < 50; i++ {
		s.Apply(testServiceConfig())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
