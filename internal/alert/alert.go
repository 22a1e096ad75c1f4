// Package alert pushes operator notifications to a Telegram chat.
//
// The service is send-only: it never polls for updates. Messages are
// queued and drained by a single worker so that a slow or failing
// Telegram API cannot stall delivery work. Repeated alerts with the
// same key are suppressed inside a dedup window; the last-seen time
// per key is persisted through the storage layer so restarts do not
// re-fire a burst of identical alerts.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"azkarbot/internal/storage"
	"azkarbot/pkg/logx"
)

// Config controls the Telegram alert channel.
type Config struct {
	Enabled     bool          `json:"enabled"`
	Token       string        `json:"token"`
	ChatID      int64         `json:"chat_id"`
	RatePerSec  float64       `json:"rate_per_sec"`
	DedupWindow time.Duration `json:"-"`
	QueueSize   int           `json:"queue_size"`
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 0.5
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 30 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

type message struct {
	key  string
	text string
}

// Service owns the Telegram bot and the outbound queue.
// A nil *Service is valid and drops everything, so callers never need
// to guard alert sites behind enabled checks.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	bot   *tele.Bot
	store storage.Store
	log   logx.Logger

	queue   chan message
	limiter *rate.Limiter

	seenMu sync.Mutex
	seen   map[string]time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New validates config and builds the service. The bot connection is
// established lazily in Start so that a bad token keeps the rest of
// the process alive.
func New(cfg Config, store storage.Store, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, errors.New("alert: token is empty")
		}
		if cfg.ChatID == 0 {
			return nil, errors.New("alert: chat_id is zero")
		}
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		log:     log,
		queue:   make(chan message, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		seen:    make(map[string]time.Time),
	}, nil
}

// Start connects the bot and launches the drain worker. It is a no-op
// when the service is nil or disabled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	b, err := tele.NewBot(tele.Settings{Token: s.cfg.Token})
	if err != nil {
		return fmt.Errorf("alert: connect bot: %w", err)
	}
	s.bot = b
	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.drain(wctx)
	s.log.Info("alert channel ready", logx.Int64("chat_id", s.cfg.ChatID))
	return nil
}

// Stop halts the drain worker. Queued messages not yet sent are dropped.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done
}

// Alertf queues a formatted alert under key. Alerts with the same key
// inside the dedup window are dropped silently. Never blocks: a full
// queue drops the message with a warning.
func (s *Service) Alertf(key, format string, args ...any) {
	if s == nil || !s.cfg.Enabled {
		return
	}
	now := time.Now()
	if s.suppressed(key, now) {
		return
	}
	m := message{key: key, text: fmt.Sprintf(format, args...)}
	select {
	case s.queue <- m:
		// The key is burned only once the alert is actually queued;
		// a dropped alert stays eligible for the next attempt.
		s.stamp(key, now)
	default:
		s.log.Warn("alert queue full, dropping", logx.String("key", key))
	}
}

func (s *Service) suppressed(key string, now time.Time) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	until, ok := s.seen[key]
	if !ok && s.store != nil {
		if v, vok, err := s.store.GetDedup(context.Background(), key); err == nil && vok {
			until = v
			ok = true
		}
	}
	return ok && now.Before(until)
}

func (s *Service) stamp(key string, now time.Time) {
	until := now.Add(s.cfg.DedupWindow)
	s.seenMu.Lock()
	s.seen[key] = until
	s.seenMu.Unlock()
	if s.store != nil {
		if err := s.store.PutDedup(context.Background(), key, until); err != nil {
			s.log.Warn("alert dedup persist failed", logx.Err(err))
		}
	}
}

func (s *Service) drain(ctx context.Context) {
	defer close(s.done)
	chat := &tele.Chat{ID: s.cfg.ChatID}
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := s.bot.Send(chat, m.text); err != nil {
				s.log.Warn("alert send failed",
					logx.String("key", m.key), logx.Err(err))
			}
		}
	}
}
