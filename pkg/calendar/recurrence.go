package calendar

import (
	"fmt"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
)

// IDSource hands out notification ids for new occurrences
type IDSource interface {
	Acquire() (int, error)
	Release(id int)
}

// NextOccurrence returns the first instant strictly after now that falls on
// day at hour:minute in now's location.
//
// The slot is first placed in now's Sunday-based week; if that instant is not
// after now it moves forward by 7 days. Called again with now set to the
// result it returns result + 7 days.
func NextOccurrence(day time.Weekday, hour, minute int, now time.Time) time.Time {
	shift := int(day) - int(now.Weekday())
	y, m, d := now.Date()
	candidate := time.Date(y, m, d+shift, hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = time.Date(y, m, d+shift+7, hour, minute, 0, 0, now.Location())
	}
	return candidate
}

// NextWeek returns the next regular slot of day after the later of now and
// fired. For an occurrence resolved when it fired this is fired + 7 days.
func NextWeek(day time.Weekday, hour, minute int, fired, now time.Time) time.Time {
	from := now
	if fired.After(from) {
		from = fired
	}
	return NextOccurrence(day, hour, minute, from)
}

// Snooze returns the fire time of an occurrence deferred by interval minutes
func Snooze(now time.Time, interval int) time.Time {
	return now.Add(time.Duration(interval) * time.Minute)
}

// DeriveDates materializes one occurrence per alarm day, each with a fresh
// notification id. Every call is a new schedule: calling it twice yields
// different ids and, for a later now, different dates.
func DeriveDates(alarm models.Alarm, now time.Time, ids IDSource) (*models.AlarmDates, error) {
	dates := &models.AlarmDates{
		AlarmUID:        alarm.UID,
		Dates:           make([]time.Time, 0, len(alarm.Days)),
		Days:            make([]time.Weekday, 0, len(alarm.Days)),
		NotificationIDs: make([]int, 0, len(alarm.Days)),
	}

	for _, day := range alarm.Days {
		id, err := ids.Acquire()
		if err != nil {
			for _, acquired := range dates.NotificationIDs {
				ids.Release(acquired)
			}
			return nil, fmt.Errorf("failed to allocate notification id for %s: %w", alarm.UID, err)
		}
		dates.Dates = append(dates.Dates, NextOccurrence(day, alarm.Hour, alarm.Minutes, now))
		dates.Days = append(dates.Days, day)
		dates.NotificationIDs = append(dates.NotificationIDs, id)
	}

	return dates, nil
}
