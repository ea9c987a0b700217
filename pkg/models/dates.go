package models

import (
	"strings"
	"time"
)

// DatesSuffix distinguishes occurrence-set records from alarm records in the
// flat key space of the store
const DatesSuffix = "_DATES"

// DatesKey returns the store key of an alarm's occurrence set
func DatesKey(alarmUID string) string {
	return alarmUID + DatesSuffix
}

// IsDatesKey reports whether key names an occurrence-set record
func IsDatesKey(key string) bool {
	return strings.HasSuffix(key, DatesSuffix)
}

// AlarmDates is the materialized set of upcoming fire times of one alarm.
//
// Dates, Days and NotificationIDs are parallel: entry i fires at Dates[i] for
// the weekly slot Days[i] and is registered with the timer service under
// NotificationIDs[i]. A snoozed entry may fall on another weekday than its
// slot; Days stays the authority for the weekly slot.
type AlarmDates struct {
	AlarmUID        string         `json:"alarmUid"`
	Dates           []time.Time    `json:"dates"`
	Days            []time.Weekday `json:"days"`
	NotificationIDs []int          `json:"notificationIds"`

	// CurrentNotificationID is the occurrence in flight while ringing, 0 when none
	CurrentNotificationID int `json:"currentNotificationId"`
}

// Key returns the store key of this set
func (d *AlarmDates) Key() string {
	return DatesKey(d.AlarmUID)
}

// Len returns the number of occurrences
func (d *AlarmDates) Len() int {
	return len(d.Dates)
}

// Index returns the position of the occurrence registered under notificationID, or -1
func (d *AlarmDates) Index(notificationID int) int {
	for i, id := range d.NotificationIDs {
		if id == notificationID {
			return i
		}
	}
	return -1
}

// Update replaces the date of one occurrence in place
func (d *AlarmDates) Update(notificationID int, date time.Time) bool {
	i := d.Index(notificationID)
	if i < 0 {
		return false
	}
	d.Dates[i] = date
	return true
}

// CurrentDate returns the date of the occurrence in flight
func (d *AlarmDates) CurrentDate() (time.Time, bool) {
	if d.CurrentNotificationID == 0 {
		return time.Time{}, false
	}
	i := d.Index(d.CurrentNotificationID)
	if i < 0 {
		return time.Time{}, false
	}
	return d.Dates[i], true
}

// Next returns the earliest scheduled date
func (d *AlarmDates) Next() (time.Time, bool) {
	var next time.Time
	for _, t := range d.Dates {
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}
