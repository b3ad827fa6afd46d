// Package shift centralizes shift selection and calendar day boundaries.
// Every day window is built in the resolver's single location.
package shift

import (
	"fmt"
	"time"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

// Window is the resolved scope of one aggregation query.
type Window struct {
	Shift models.Shift
	Day   string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Resolver computes shift windows in one time zone.
type Resolver struct {
	loc *time.Location
}

// NewResolver builds a resolver for the given location; nil means UTC.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// LoadResolver builds a resolver from an IANA zone name.
func LoadResolver(zone string) (*Resolver, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", zone, err)
	}
	return NewResolver(loc), nil
}

// Location returns the resolver's time zone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve picks the active shift and today's window for now. The override
// wins over the persisted selection; with neither, morning is used. The shift
// is never inferred from the time of day.
func (r *Resolver) Resolve(now time.Time, override, selected models.Shift) Window {
	active := models.ShiftMorning
	switch {
	case override.Valid():
		active = override
	case selected.Valid():
		active = selected
	}
	start := r.startOfDay(now)
	return Window{
		Shift: active,
		Day:   start.Format(models.DayLayout),
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// Today returns the calendar day label of now.
func (r *Resolver) Today(now time.Time) string {
	return now.In(r.loc).Format(models.DayLayout)
}

// Window builds the window for an explicit day label.
func (r *Resolver) Window(s models.Shift, day string) (Window, error) {
	if !s.Valid() {
		return Window{}, models.Invalid("shift", fmt.Sprintf("unknown shift %q", s))
	}
	start, err := time.ParseInLocation(models.DayLayout, day, r.loc)
	if err != nil {
		return Window{}, models.Invalid("day", fmt.Sprintf("expected YYYY-MM-DD, got %q", day))
	}
	return Window{
		Shift: s,
		Day:   day,
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}, nil
}

func (r *Resolver) startOfDay(t time.Time) time.Time {
	local := t.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
}
