package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidAlarm is returned by Validate when an alarm cannot be scheduled
var ErrInvalidAlarm = errors.New("invalid alarm")

// Alarm is a user-defined recurrence rule plus display metadata.
//
// Days uses time.Weekday numbering (Sunday=0 .. Saturday=6). Conversion from
// any other numbering happens at the command boundary only.
type Alarm struct {
	UID            string         `json:"uid"`
	Days           []time.Weekday `json:"days"`
	Hour           int            `json:"hour"`           // 0-23
	Minutes        int            `json:"minutes"`        // 0-59
	SnoozeInterval int            `json:"snoozeInterval"` // minutes
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Repeating      bool           `json:"repeating"`
	Active         bool           `json:"active"`
}

// Normalize sorts Days and drops duplicates, since days form a set
func (a *Alarm) Normalize() {
	if len(a.Days) == 0 {
		return
	}
	seen := make(map[time.Weekday]bool, len(a.Days))
	days := make([]time.Weekday, 0, len(a.Days))
	for _, d := range a.Days {
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	a.Days = days
}

// Validate checks ranges and the days invariant
func (a *Alarm) Validate() error {
	if a.UID == "" {
		return fmt.Errorf("%w: empty uid", ErrInvalidAlarm)
	}
	if IsDatesKey(a.UID) {
		return fmt.Errorf("%w: uid %q ends with reserved suffix %s", ErrInvalidAlarm, a.UID, DatesSuffix)
	}
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidAlarm, a.Hour)
	}
	if a.Minutes < 0 || a.Minutes > 59 {
		return fmt.Errorf("%w: minutes %d out of range", ErrInvalidAlarm, a.Minutes)
	}
	if a.SnoozeInterval < 0 {
		return fmt.Errorf("%w: negative snooze interval", ErrInvalidAlarm)
	}
	for _, d := range a.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidAlarm, d)
		}
	}
	if a.Active && len(a.Days) == 0 {
		return fmt.Errorf("%w: active alarm needs at least one day", ErrInvalidAlarm)
	}
	return nil
}

// Clone returns a deep copy
func (a Alarm) Clone() Alarm {
	a.Days = append([]time.Weekday(nil), a.Days...)
	return a
}

// TimeString returns the alarm time as HH:MM
func (a Alarm) TimeString() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minutes)
}
