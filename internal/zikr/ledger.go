package zikr

// CampaignRecord is the per-campaign slice of the ledger: the date the set
// below refers to, and the recipients already served on that date.
//
// Invariant: if LastSentDate differs from today's date, the recipient set is
// logically empty even before it is physically cleared. All readers compare
// dates before trusting Recipients.
type CampaignRecord struct {
	LastSentDate string   `json:"last_sent_date"`
	Recipients   []string `json:"recipients"`
}

func (r *CampaignRecord) has(recipient Recipient) bool {
	for _, s := range r.Recipients {
		if s == string(recipient) {
			return true
		}
	}
	return false
}

// Ledger is the sole durable state of the delivery engine: campaign name ->
// record. Owned and mutated exclusively by the tracker.
type Ledger map[string]*CampaignRecord

func NewLedger() Ledger { return Ledger{} }

// IsSent reports whether recipient was already served for campaign on the
// given date.
func (l Ledger) IsSent(campaign string, recipient Recipient, today string) bool {
	rec, ok := l[campaign]
	if !ok || rec == nil {
		return false
	}
	if rec.LastSentDate != today {
		return false
	}
	return rec.has(recipient)
}

// MarkSent records recipient as served for campaign today. A stale date
// resets the set first (date rollover). Marking twice is a no-op.
func (l Ledger) MarkSent(campaign string, recipient Recipient, today string) {
	rec, ok := l[campaign]
	if !ok || rec == nil {
		rec = &CampaignRecord{LastSentDate: today}
		l[campaign] = rec
	}
	if rec.LastSentDate != today {
		rec.LastSentDate = today
		rec.Recipients = nil
	}
	if rec.has(recipient) {
		return
	}
	rec.Recipients = append(rec.Recipients, string(recipient))
}

// Pending filters recipients down to those not yet served today, preserving
// input order.
func (l Ledger) Pending(campaign string, recipients []Recipient, today string) []Recipient {
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if !l.IsSent(campaign, r, today) {
			out = append(out, r)
		}
	}
	return out
}

// FullySent reports whether every recipient was served for campaign today.
func (l Ledger) FullySent(campaign string, recipients []Recipient, today string) bool {
	for _, r := range recipients {
		if !l.IsSent(campaign, r, today) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, used to hand a snapshot to the store without
// exposing the live maps.
func (l Ledger) Clone() Ledger {
	cp := make(Ledger, len(l))
	for name, rec := range l {
		if rec == nil {
			continue
		}
		cp[name] = &CampaignRecord{
			LastSentDate: rec.LastSentDate,
			Recipients:   append([]string(nil), rec.Recipients...),
		}
	}
	return cp
}
