package alert

import (
	"context"
	"testing"
	"time"

	"azkarbot/internal/storage"
	"azkarbot/pkg/logx"
)

func TestNilServiceIsSafe(t *testing.T) {
	t.Parallel()
	var s *Service
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil: %v", err)
	}
	s.Alertf("k", "boom %d", 1)
	s.Stop()
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Enabled: true, ChatID: 7}, nil, logx.Nop()); err == nil {
		t.Fatal("missing token accepted")
	}
	if _, err := New(Config{Enabled: true, Token: "t"}, nil, logx.Nop()); err == nil {
		t.Fatal("missing chat_id accepted")
	}
	if _, err := New(Config{Enabled: false}, nil, logx.Nop()); err != nil {
		t.Fatalf("disabled config rejected: %v", err)
	}
}

func TestDisabledDropsEverything(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Enabled: false}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Alertf("k", "dropped")
	if len(s.queue) != 0 {
		t.Fatalf("queue = %d, want 0", len(s.queue))
	}
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	t.Parallel()
	s, err := New(Config{
		Enabled: true, Token: "t", ChatID: 7,
		DedupWindow: time.Hour, QueueSize: 4,
	}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Alertf("batch-morning", "first")
	s.Alertf("batch-morning", "second")
	s.Alertf("batch-evening", "other key")

	if got := len(s.queue); got != 2 {
		t.Fatalf("queued = %d, want 2 (duplicate suppressed)", got)
	}
	m := <-s.queue
	if m.key != "batch-morning" || m.text != "first" {
		t.Fatalf("first message = %+v", m)
	}
}

func TestDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	open := func() storage.Store {
		st, err := storage.Open(storage.Config{Driver: "file", Path: dir + "/azkar.db"}, logx.Nop())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		return st
	}
	cfg := Config{Enabled: true, Token: "t", ChatID: 7, DedupWindow: time.Hour, QueueSize: 4}

	st := open()
	s1, err := New(cfg, st, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1.Alertf("breaker-open", "circuit opened")
	if len(s1.queue) != 1 {
		t.Fatalf("queued = %d, want 1", len(s1.queue))
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	s2, err := New(cfg, open(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s2.Alertf("breaker-open", "still suppressed")
	if len(s2.queue) != 0 {
		t.Fatalf("queued after restart = %d, want 0", len(s2.queue))
	}
}

func TestQueueFullDropDoesNotBurnKey(t *testing.T) {
	t.Parallel()
	s, err := New(Config{
		Enabled: true, Token: "t", ChatID: 7,
		DedupWindow: time.Hour, QueueSize: 1,
	}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Alertf("batch-morning", "fills the queue")
	s.Alertf("breaker-open", "dropped, queue full")

	<-s.queue
	s.Alertf("breaker-open", "retried after drain")
	if got := len(s.queue); got != 1 {
		t.Fatalf("queue = %d, want 1; a dropped alert must stay eligible", got)
	}
	if m := <-s.queue; m.key != "breaker-open" {
		t.Fatalf("queued key = %q, want breaker-open", m.key)
	}
}
