// Package scheduler runs the delivery loop: wake up, find campaigns
// whose window is open, send to recipients not yet covered today, mark
// the ledger, sleep until the next boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"azkarbot/internal/delivery"
	"azkarbot/internal/schedule"
	"azkarbot/internal/storage"
	"azkarbot/internal/tracker"
	"azkarbot/internal/zikr"
	"azkarbot/pkg/logx"
)

// Sender is the slice of the delivery layer the loop needs. Satisfied
// by *delivery.Sender.
type Sender interface {
	SendTextBatch(ctx context.Context, recipients []zikr.Recipient, text string) (delivery.Result, error)
	SendImageBatch(ctx context.Context, recipients []zikr.Recipient, imagePath, caption string) (delivery.Result, error)
}

// Alerter pushes operator notifications. Satisfied by *alert.Service;
// a nil implementation is fine.
type Alerter interface {
	Alertf(key, format string, args ...any)
}

type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

type MaintenanceConfig struct {
	Enabled           bool
	PruneCron         string
	DiagnosticsDir    string
	DiagnosticsMaxAge time.Duration
	SummaryCron       string
}

// Config carries resolved (already parsed and validated) settings.
type Config struct {
	Location       *time.Location
	CheckInterval  time.Duration
	Campaigns      []zikr.Campaign
	Recipients     []zikr.Recipient
	IncludeCaption bool

	Breaker     BreakerConfig
	Maintenance MaintenanceConfig
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 3
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 10 * time.Minute
	}
	return c
}

// Status is a point-in-time view of the loop for diagnostics.
type Status struct {
	LastTick    time.Time `json:"last_tick"`
	NextWakeup  time.Time `json:"next_wakeup"`
	SentToday   int       `json:"sent_today"`
	FailedToday int       `json:"failed_today"`
	Breaker     string    `json:"breaker,omitempty"`
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	tracker *tracker.Tracker
	sender  Sender
	alerts  Alerter
	log     logx.Logger

	breaker *gobreaker.CircuitBreaker
	maint   *maintenance

	// now is swappable for tests.
	now func() time.Time

	lastTick    time.Time
	nextWakeup  time.Time
	statsDate   string
	sentToday   int
	failedToday int
}

type noopAlerter struct{}

func (noopAlerter) Alertf(string, string, ...any) {}

func New(cfg Config, tr *tracker.Tracker, sender Sender, alerts Alerter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if alerts == nil {
		alerts = noopAlerter{}
	}
	s := &Service{
		cfg:     cfg,
		tracker: tr,
		sender:  sender,
		alerts:  alerts,
		log:     log,
		now:     time.Now,
	}
	s.breaker = newBreaker(cfg.Breaker, log)
	return s
}

func newBreaker(cfg BreakerConfig, log logx.Logger) *gobreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	max := cfg.MaxFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "delivery",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= max },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("delivery breaker state changed",
				logx.String("from", from.String()), logx.String("to", to.String()))
		},
	})
}

// Apply swaps the runtime config. The breaker is rebuilt so new trip
// settings take effect; accumulated failure counts reset, which is the
// safer direction after an operator edit.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if old.Breaker != cfg.Breaker {
		s.breaker = newBreaker(cfg.Breaker, s.log)
	}
	m := s.maint
	s.mu.Unlock()
	if m != nil {
		m.apply(cfg.Maintenance)
	}
}

func (s *Service) snapshot() (Config, *gobreaker.CircuitBreaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.breaker
}

// Run blocks until ctx is done. A panicking tick is logged and treated
// like a failed tick; the loop keeps going on the fallback interval.
func (s *Service) Run(ctx context.Context) error {
	s.startMaintenance(ctx)
	defer s.stopMaintenance()

	for {
		if ctx.Err() != nil {
			return nil
		}
		wakeup := s.safeTick(ctx)

		d := time.Until(wakeup)
		if d <= 0 {
			// A wakeup in the past means the tick ran long or the
			// clock jumped; fall back to the poll interval rather
			// than spinning.
			cfg, _ := s.snapshot()
			d = cfg.CheckInterval
		}
		next := time.Now().Add(d)
		s.mu.Lock()
		s.nextWakeup = next
		s.mu.Unlock()
		s.log.Debug("sleeping", logx.Duration("for", d), logx.Time("until", next))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d):
		}
	}
}

func (s *Service) safeTick(ctx context.Context) (wakeup time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
			s.alerts.Alertf("tick-panic", "scheduler tick panicked: %v", r)
			cfg, _ := s.snapshot()
			wakeup = s.now().Add(cfg.CheckInterval)
		}
	}()
	return s.tick(ctx)
}

func (s *Service) tick(ctx context.Context) time.Time {
	cfg, br := s.snapshot()
	now := s.now().In(cfg.Location)
	today := zikr.DateIn(now, cfg.Location)
	s.rollStats(today)
	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()

	fullySent := func(name string) bool {
		return s.tracker.FullySent(name, cfg.Recipients, today)
	}
	res := schedule.Evaluate(now, cfg.Campaigns, cfg.CheckInterval, fullySent)

	for _, name := range res.Active {
		cam, ok := campaignByName(cfg.Campaigns, name)
		if !ok {
			continue
		}
		pending := s.tracker.Pending(name, cfg.Recipients, today)
		if len(pending) == 0 {
			continue
		}
		s.log.Info("window open, sending",
			logx.String("campaign", name),
			logx.Strings("pending", recipientStrings(pending)))
		s.runCampaign(ctx, cfg, br, cam, pending, today)
		if ctx.Err() != nil {
			break
		}
	}

	// Recompute after marking so a fully covered window stops holding
	// the wakeup at its own start hour.
	res = schedule.Evaluate(s.now().In(cfg.Location), cfg.Campaigns, cfg.CheckInterval, fullySent)
	return res.NextWakeup
}

func (s *Service) runCampaign(ctx context.Context, cfg Config, br *gobreaker.CircuitBreaker, cam zikr.Campaign, pending []zikr.Recipient, today string) {
	start := s.now()
	result, err := s.sendWithBreaker(ctx, br, cfg, cam, pending)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.log.Warn("delivery breaker open, skipping window",
				logx.String("campaign", cam.Name))
			s.alerts.Alertf("breaker-open", "delivery breaker is open, skipping %s window", cam.Name)
			return
		}
		s.log.Error("batch failed", logx.String("campaign", cam.Name), logx.Err(err))
		s.alerts.Alertf("batch-"+cam.Name, "%s batch failed: %v", cam.Name, err)
	}

	took := s.now().Sub(start)
	for _, r := range result.Sent {
		s.tracker.MarkSent(ctx, cam.Name, r, today)
		s.tracker.Audit(ctx, storage.AuditEntry{
			At:        s.now(),
			Campaign:  cam.Name,
			Recipient: r.String(),
			Kind:      string(cam.Payload.Kind),
			OK:        true,
			TookMS:    took.Milliseconds(),
		})
	}
	for _, f := range result.Failed {
		s.tracker.Audit(ctx, storage.AuditEntry{
			At:        s.now(),
			Campaign:  cam.Name,
			Recipient: f.Recipient.String(),
			Kind:      string(cam.Payload.Kind),
			OK:        false,
			Stage:     string(f.Stage),
			Error:     f.Err.Error(),
			TookMS:    took.Milliseconds(),
		})
	}

	s.mu.Lock()
	s.sentToday += len(result.Sent)
	s.failedToday += len(result.Failed)
	s.mu.Unlock()

	s.log.Info("batch finished",
		logx.String("campaign", cam.Name),
		logx.Int("sent", len(result.Sent)),
		logx.Int("failed", len(result.Failed)),
		logx.Duration("took", took))
	if n := len(result.Failed); n > 0 {
		s.alerts.Alertf("failures-"+cam.Name,
			"%s: %d of %d recipients failed", cam.Name, n, len(pending))
	}
}

func (s *Service) sendWithBreaker(ctx context.Context, br *gobreaker.CircuitBreaker, cfg Config, cam zikr.Campaign, pending []zikr.Recipient) (delivery.Result, error) {
	send := func() (delivery.Result, error) {
		switch cam.Payload.Kind {
		case zikr.PayloadText:
			return s.sender.SendTextBatch(ctx, pending, cam.Payload.Text)
		case zikr.PayloadImage:
			caption := ""
			if cfg.IncludeCaption {
				caption = cam.Payload.Text
			}
			return s.sender.SendImageBatch(ctx, pending, cam.Payload.ImagePath, caption)
		default:
			return delivery.Result{}, fmt.Errorf("unknown payload kind %q", cam.Payload.Kind)
		}
	}
	if br == nil {
		return send()
	}
	v, err := br.Execute(func() (any, error) {
		res, serr := send()
		// Partial success keeps the circuit closed; only batch-level
		// failures (auth, browser startup) count against it.
		return res, serr
	})
	if v == nil {
		return delivery.Result{}, err
	}
	return v.(delivery.Result), err
}

// RunNow sends the named campaign immediately, ignoring its window.
// Recipients already covered today are still skipped.
func (s *Service) RunNow(ctx context.Context, name string) error {
	cfg, br := s.snapshot()
	now := s.now().In(cfg.Location)
	today := zikr.DateIn(now, cfg.Location)
	s.rollStats(today)

	cam, ok := campaignByName(cfg.Campaigns, name)
	if !ok {
		return fmt.Errorf("unknown campaign %q", name)
	}
	pending := s.tracker.Pending(name, cfg.Recipients, today)
	if len(pending) == 0 {
		s.log.Info("nothing pending", logx.String("campaign", name))
		return nil
	}
	s.runCampaign(ctx, cfg, br, cam, pending, today)
	return nil
}

func (s *Service) rollStats(today string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statsDate != today {
		s.statsDate = today
		s.sentToday = 0
		s.failedToday = 0
	}
}

// Snapshot reports loop status for the diagnostics surface.
func (s *Service) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		LastTick:    s.lastTick,
		NextWakeup:  s.nextWakeup,
		SentToday:   s.sentToday,
		FailedToday: s.failedToday,
	}
	if s.breaker != nil {
		st.Breaker = s.breaker.State().String()
	}
	return st
}

func campaignByName(cs []zikr.Campaign, name string) (zikr.Campaign, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return zikr.Campaign{}, false
}

func recipientStrings(rs []zikr.Recipient) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
