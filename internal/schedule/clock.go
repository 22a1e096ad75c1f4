// Package schedule computes, from a wall-clock instant and the configured
// campaign windows, which campaigns are currently eligible and when the
// scheduler should wake up next. It performs no I/O so it can be tested
// against injected timestamps.
package schedule

import (
	"sort"
	"time"

	"azkarbot/internal/zikr"
)

// Result of one clock evaluation.
type Result struct {
	// Active holds the names of campaigns whose window contains now,
	// in ascending window-start order.
	Active []string

	// NextWakeup is when the scheduler should evaluate again. Always
	// strictly after now.
	NextWakeup time.Time
}

// Evaluate applies the wakeup policy, in priority order:
//
//  1. The earliest campaign whose start is still ahead today and which is
//     not fully sent -> that campaign's start today.
//  2. now at/after the last campaign's start, or every campaign fully
//     sent -> the earliest campaign's start tomorrow.
//  3. Otherwise -> now + checkInterval (defensive fallback, e.g. inside a
//     window with sends still pending).
//
// fullySent reports whether every configured recipient was already served
// for the named campaign today; it must not mutate anything.
func Evaluate(now time.Time, campaigns []zikr.Campaign, checkInterval time.Duration, fullySent func(name string) bool) Result {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	if len(campaigns) == 0 {
		return Result{NextWakeup: now.Add(checkInterval)}
	}

	ordered := append([]zikr.Campaign(nil), campaigns...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Window.StartHour < ordered[j].Window.StartHour
	})

	res := Result{}
	for _, c := range ordered {
		if c.Window.Contains(now.Hour()) {
			res.Active = append(res.Active, c.Name)
		}
	}

	// 1. Earliest still-ahead, not-fully-sent start today.
	for _, c := range ordered {
		start := c.Window.StartToday(now)
		if now.Before(start) && !fullySent(c.Name) {
			res.NextWakeup = start
			return res
		}
	}

	// 2. Past the last start, or everything served: tomorrow's first start.
	last := ordered[len(ordered)-1]
	allSent := true
	for _, c := range ordered {
		if !fullySent(c.Name) {
			allSent = false
			break
		}
	}
	if !now.Before(last.Window.StartToday(now)) || allSent {
		first := ordered[0]
		res.NextWakeup = first.Window.StartToday(now).AddDate(0, 0, 1)
		return res
	}

	// 3. Fallback: poll again after the check interval.
	res.NextWakeup = now.Add(checkInterval)
	return res
}
