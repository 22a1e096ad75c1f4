package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"azkarbot/internal/zikr"
	logx "azkarbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.ledger.json  (snapshot, rewritten atomically on every save)
//   - <prefix>.audit.jsonl  (append-only JSON Lines)
//   - <prefix>.dedup.json   (snapshot, rewritten on every put)
//
// The ledger is small (a handful of campaigns, tens of recipients) and is
// mutated once per successful send, so full rewrites are cheap enough.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	ledgerPath string
	dedupPath  string

	auditFile *os.File

	dedup map[string]int64 // unix milli
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:        log,
		ledgerPath: prefix + ".ledger.json",
		dedupPath:  prefix + ".dedup.json",
		auditFile:  af,
		dedup:      map[string]int64{},
	}
	if err := loadJSON(s.dedupPath, &s.dedup); err != nil && !os.IsNotExist(err) {
		log.Warn("dedup snapshot unreadable, starting empty", logx.Err(err))
		s.dedup = map[string]int64{}
	}
	pruneExpiredDedup(s.dedup)
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) LoadLedger(ctx context.Context) (zikr.Ledger, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	l := zikr.NewLedger()
	err := loadJSON(s.ledgerPath, &l)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	return l, nil
}

func (s *fileStore) SaveLedger(ctx context.Context, l zikr.Ledger) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.ledgerPath, l)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedup == nil {
		s.dedup = map[string]int64{}
	}
	s.dedup[key] = until.UnixMilli()
	pruneExpiredDedup(s.dedup)
	return writeJSONAtomic(s.dedupPath, s.dedup)
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func loadJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
