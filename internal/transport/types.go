// Package transport defines the abstract browser-session capabilities the
// delivery engine depends on. Concrete implementations (go-rod driving
// Chromium) live under internal/adapters.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Session.Find when a locator does not resolve
// within its timeout. Callers treat it as a recoverable per-step failure.
var ErrNotFound = errors.New("element not found")

// LocatorKind selects the query language of a locator expression.
type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorXPath LocatorKind = "xpath"
)

// Locator is one way of finding a logical UI control.
type Locator struct {
	Kind LocatorKind
	Expr string
}

func CSS(expr string) Locator   { return Locator{Kind: LocatorCSS, Expr: expr} }
func XPath(expr string) Locator { return Locator{Kind: LocatorXPath, Expr: expr} }

// ClickMethod is one technique for activating a control. Techniques are
// tried in declared order; the remote UI sometimes rejects one while
// accepting another.
type ClickMethod int

const (
	// ClickDirect is a plain element activation.
	ClickDirect ClickMethod = iota
	// ClickScripted activates the element programmatically in the page.
	ClickScripted
	// ClickPointer simulates a pointer move to the element and a click.
	ClickPointer
)

func (m ClickMethod) String() string {
	switch m {
	case ClickDirect:
		return "direct"
	case ClickScripted:
		return "scripted"
	case ClickPointer:
		return "pointer"
	default:
		return "unknown"
	}
}

// TypeMode selects between bulk text injection and per-rune injection with
// a small delay. Per-rune is a mitigation for controls that drop fast bulk
// input, not a performance knob.
type TypeMode int

const (
	TypeBulk TypeMode = iota
	TypePerRune
)

// FindOptions bound a single locator attempt.
type FindOptions struct {
	// Timeout bounds the presence wait.
	Timeout time.Duration
	// RequireClickable additionally waits (bounded by ClickableTimeout)
	// until the element is visible and interactable.
	RequireClickable bool
	ClickableTimeout time.Duration
}

// Handle is a resolved, usable reference to a UI control.
type Handle interface {
	Click(ctx context.Context, method ClickMethod) error
	Type(ctx context.Context, text string, mode TypeMode) error
	// Upload feeds a local file path to a file-input control.
	Upload(ctx context.Context, path string) error
}

// Session is one live browser-session lifecycle.
type Session interface {
	// Open navigates to url and waits for the page load to settle.
	Open(ctx context.Context, url string) error
	// Find attempts a single locator. Returns ErrNotFound (possibly
	// wrapped) when the locator does not resolve in time.
	Find(ctx context.Context, loc Locator, opt FindOptions) (Handle, error)
	// PressSubmitKey sends the platform submit key (Enter) to the page,
	// independent of any resolved control.
	PressSubmitKey(ctx context.Context) error
	// Screenshot captures a diagnostic image tagged for later triage and
	// returns the file path it was written to.
	Screenshot(ctx context.Context, tag string) (string, error)
	// Close releases the underlying browser. Safe to call exactly once.
	Close() error
}

// Factory opens sessions. The delivery engine opens one session per batch
// job and always closes it.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// AuthProbe answers whether the messaging service recognizes the stored
// browser profile, and can block until a login completes (QR scan).
type AuthProbe interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	WaitForAuthentication(ctx context.Context, timeout time.Duration) (bool, error)
}
