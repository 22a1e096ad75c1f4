package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"azkarbot/pkg/logx"
)

const (
	defaultPruneCron   = "0 3 * * *"
	defaultSummaryCron = "55 23 * * *"
	defaultDiagMaxAge  = 7 * 24 * time.Hour
)

// maintenance owns the cron runner for housekeeping jobs: pruning old
// failure screenshots and emitting a daily delivery summary.
type maintenance struct {
	mu     sync.Mutex
	cfg    MaintenanceConfig
	loc    *time.Location
	c      *cron.Cron
	parent *Service
	log    logx.Logger
}

func (s *Service) startMaintenance(ctx context.Context) {
	cfg, _ := s.snapshot()
	m := &maintenance{parent: s, log: s.log, loc: cfg.Location}
	s.mu.Lock()
	s.maint = m
	s.mu.Unlock()
	m.apply(cfg.Maintenance)
	go func() {
		<-ctx.Done()
		m.stop()
	}()
}

func (s *Service) stopMaintenance() {
	s.mu.Lock()
	m := s.maint
	s.mu.Unlock()
	if m != nil {
		m.stop()
	}
}

func (m *maintenance) apply(cfg MaintenanceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg == m.cfg && m.c != nil {
		return
	}
	if m.c != nil {
		m.c.Stop()
		m.c = nil
	}
	m.cfg = cfg
	if !cfg.Enabled {
		return
	}

	prune := cfg.PruneCron
	if prune == "" {
		prune = defaultPruneCron
	}
	summary := cfg.SummaryCron
	if summary == "" {
		summary = defaultSummaryCron
	}

	c := cron.New(cron.WithLocation(m.loc))
	if _, err := c.AddFunc(prune, m.pruneDiagnostics); err != nil {
		m.log.Warn("bad prune cron spec", logx.String("spec", prune), logx.Err(err))
	}
	if _, err := c.AddFunc(summary, m.dailySummary); err != nil {
		m.log.Warn("bad summary cron spec", logx.String("spec", summary), logx.Err(err))
	}
	c.Start()
	m.c = c
}

func (m *maintenance) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil {
		m.c.Stop()
		m.c = nil
	}
}

// pruneDiagnostics deletes screenshots older than the retention window.
func (m *maintenance) pruneDiagnostics() {
	m.mu.Lock()
	dir := m.cfg.DiagnosticsDir
	maxAge := m.cfg.DiagnosticsMaxAge
	m.mu.Unlock()
	if dir == "" {
		return
	}
	if maxAge <= 0 {
		maxAge = defaultDiagMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("diagnostics prune failed", logx.Err(err))
		}
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("pruned old diagnostics",
			logx.Int("removed", removed), logx.String("dir", dir))
	}
}

func (m *maintenance) dailySummary() {
	st := m.parent.Snapshot()
	m.log.Info("daily delivery summary",
		logx.Int("sent", st.SentToday),
		logx.Int("failed", st.FailedToday))
	m.parent.alerts.Alertf("daily-summary",
		"today: %d sent, %d failed", st.SentToday, st.FailedToday)
}
