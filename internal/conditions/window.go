package conditions

import (
	"time"

	"github.com/outflow-crm/outflow/internal/config"
)

// Window is a Monday-to-Friday business-hours window in a fixed timezone.
// Hours are [StartHour, EndHour) local time.
type Window struct {
	Loc       *time.Location
	StartHour int
	EndHour   int
}

// DefaultWindow is 09:00-18:00 UTC, Monday through Friday.
func DefaultWindow() Window {
	return Window{Loc: time.UTC, StartHour: 9, EndHour: 18}
}

// WindowFromConfig builds a Window from the business-hours configuration.
func WindowFromConfig(cfg config.BusinessHoursConfig) Window {
	return Window{
		Loc:       cfg.Location(),
		StartHour: cfg.StartHour,
		EndHour:   cfg.EndHour,
	}
}

// Location returns the window's timezone, defaulting to UTC.
func (w Window) Location() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// Contains reports whether t falls within business hours.
func (w Window) Contains(t time.Time) bool {
	local := t.In(w.Location())
	if isWeekend(local.Weekday()) {
		return false
	}
	h := local.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// NextOpen returns the next instant at or after t that falls within
// business hours. An in-window instant is returned unchanged.
func (w Window) NextOpen(t time.Time) time.Time {
	local := t.In(w.Location())
	if w.Contains(t) {
		return t
	}

	// Same day, before opening.
	if !isWeekend(local.Weekday()) && local.Hour() < w.StartHour {
		return w.openingOn(local)
	}

	// Otherwise the next business day's opening.
	next := local.AddDate(0, 0, 1)
	for isWeekend(next.Weekday()) {
		next = next.AddDate(0, 0, 1)
	}
	return w.openingOn(next)
}

func (w Window) openingOn(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, w.Location())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
