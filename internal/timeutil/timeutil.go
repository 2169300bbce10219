// Package timeutil provides the pollable "now" used by date-sensitive
// queries. The current time can be overridden through the
// GTD_OVERRIDE_DATETIME environment variable (RFC 3339, or a bare
// yyyy-mm-dd date) so date-boundary behavior is testable.
package timeutil

import (
	"os"
	"time"
)

// OverrideEnvVar names the environment variable consulted by Now.
const OverrideEnvVar = "GTD_OVERRIDE_DATETIME"

// Now returns the current time, honoring the override variable when it
// parses. A malformed override is ignored.
func Now() time.Time {
	if raw := os.Getenv(OverrideEnvVar); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}

		if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
			return t
		}
	}

	return time.Now()
}

// StartOfDay returns midnight at the beginning of t's day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}

// OnWorkday decides whether a task with the given dates belongs in
// the workday view relative to now. A completed task stays visible
// only through the day it was completed on. An open task qualifies
// when its start or due date lies within today or in the past; zero
// dates do not count.
func OnWorkday(start, due, doneDate time.Time, done bool, now time.Time) bool {
	if done {
		return !doneDate.IsZero() && SameDay(doneDate, now)
	}

	end := EndOfDay(now)

	if !start.IsZero() && !start.After(end) {
		return true
	}

	if !due.IsZero() && !due.After(end) {
		return true
	}

	return false
}
