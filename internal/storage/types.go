package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json snapshot + jsonl audit)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and the tracker runs
// with in-memory state only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one delivery outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Campaign  string    `json:"campaign"`
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"` // "text" | "image"
	OK        bool      `json:"ok"`
	Stage     string    `json:"stage,omitempty"` // failure stage, empty on success
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
