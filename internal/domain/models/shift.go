package models

import (
	"fmt"
	"strings"
	"time"
)

// Shift names one of the two half-day operating windows.
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftNight   Shift = "night"
)

// DayLayout is the calendar day format used for report keys and queries.
const DayLayout = "2006-01-02"

// Valid reports whether s is a known shift label.
func (s Shift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftNight:
		return true
	}
	return false
}

// Toggle returns the other shift.
func (s Shift) Toggle() Shift {
	if s == ShiftNight {
		return ShiftMorning
	}
	return ShiftNight
}

// ParseShift normalizes user input into a Shift.
func ParseShift(raw string) (Shift, error) {
	s := Shift(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Invalid("shift", fmt.Sprintf("unknown shift %q", raw))
	}
	return s, nil
}

// ShiftSelection is the persisted, user toggled active shift of one owner.
type ShiftSelection struct {
	OwnerID   string    `gorm:"primaryKey;size:64" bson:"_id" json:"owner_id"`
	Shift     Shift     `gorm:"size:16;not null" bson:"shift" json:"shift"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
