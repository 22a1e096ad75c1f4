package delivery

import (
	"errors"
	"time"

	"azkarbot/internal/zikr"
)

// ErrNotAuthenticated is the fatal-to-job failure: the logged-in marker
// never appeared, so no recipient can be processed.
var ErrNotAuthenticated = errors.New("whatsapp web session not authenticated")

// Stage names the state a recipient (or the whole job) was in. Used in
// diagnostics tags, failure reports and the audit trail.
type Stage string

const (
	StageUnopened        Stage = "unopened"
	StageLoading         Stage = "loading"
	StageAuthenticated   Stage = "authenticated"
	StageNavigating      Stage = "navigating"
	StageAttachmentOpen  Stage = "attachment_open"
	StageContentAttached Stage = "content_attached"
	StageReady           Stage = "ready"
	StageSent            Stage = "sent"
	StageClosed          Stage = "closed"
)

// Failure is one recipient that did not reach StageSent, with the stage it
// stalled in.
type Failure struct {
	Recipient zikr.Recipient
	Stage     Stage
	Err       error
}

// Result reports a finished batch. Only recipients in Sent may be marked
// in the ledger.
type Result struct {
	Sent   []zikr.Recipient
	Failed []Failure
}

// Config tunes the batch machine. Durations cover the bounded waits and
// the fixed settle delays after navigation/upload; both mirror how the
// remote UI actually behaves, not how fast we would like it to be.
type Config struct {
	BaseURL string

	// LoadTimeout bounds the wait for the logged-in marker after opening
	// the service root.
	LoadTimeout      time.Duration
	FindTimeout      time.Duration
	ClickableTimeout time.Duration

	ChatSettle   time.Duration // after navigating to a chat
	MenuSettle   time.Duration // after opening the attachment menu
	UploadSettle time.Duration // after feeding the file input
	SendSettle   time.Duration // after activating send

	// SendsPerMinute paces recipients within a batch. <= 0 disables
	// pacing.
	SendsPerMinute int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://web.whatsapp.com"
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 60 * time.Second
	}
	if c.FindTimeout <= 0 {
		c.FindTimeout = 20 * time.Second
	}
	if c.ClickableTimeout <= 0 {
		c.ClickableTimeout = 5 * time.Second
	}
	if c.ChatSettle <= 0 {
		c.ChatSettle = 10 * time.Second
	}
	if c.MenuSettle <= 0 {
		c.MenuSettle = 2 * time.Second
	}
	if c.UploadSettle <= 0 {
		c.UploadSettle = 4 * time.Second
	}
	if c.SendSettle <= 0 {
		c.SendSettle = 4 * time.Second
	}
	return c
}
