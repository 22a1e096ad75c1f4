package zikr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Recipient is an opaque chat identifier (usually an international phone
// number). Immutable once read from configuration.
type Recipient string

func (r Recipient) String() string { return string(r) }

// PayloadKind selects between a text body and an image with optional caption.
type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
)

// Payload describes what a campaign sends.
type Payload struct {
	Kind      PayloadKind
	Text      string // text body (PayloadText) or caption (PayloadImage)
	ImagePath string
}

func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadText:
		if strings.TrimSpace(p.Text) == "" {
			return errors.New("text payload is empty")
		}
	case PayloadImage:
		if strings.TrimSpace(p.ImagePath) == "" {
			return errors.New("image payload has no path")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

// Window is an eligible hour range [StartHour, EndHour) in the configured
// timezone.
type Window struct {
	StartHour int
	EndHour   int
}

func (w Window) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

func (w Window) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("start hour %d out of range", w.StartHour)
	}
	if w.EndHour < 1 || w.EndHour > 24 {
		return fmt.Errorf("end hour %d out of range", w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("start hour %d must precede end hour %d", w.StartHour, w.EndHour)
	}
	return nil
}

// StartToday returns the window start on the calendar day of ref.
func (w Window) StartToday(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), w.StartHour, 0, 0, 0, ref.Location())
}

// Campaign is a named recurring reminder (e.g. morning, evening) with its
// own window and payload.
type Campaign struct {
	Name    string
	Window  Window
	Payload Payload
}

// Well-known campaign names materialized from configuration.
const (
	CampaignMorning = "morning"
	CampaignEvening = "evening"
)

// DateIn formats the calendar date of t in loc, the format the ledger keys
// its rollover comparisons on.
func DateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// NormalizeRecipients trims and de-duplicates while preserving input order.
func NormalizeRecipients(in []Recipient) []Recipient {
	seen := make(map[Recipient]struct{}, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		r = Recipient(strings.TrimSpace(string(r)))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
