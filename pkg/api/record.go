// Package api is the command boundary of the alarm clock: the record schema
// clients exchange, the command surface over the engine and its HTTP server.
package api

import (
	"fmt"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/google/uuid"
)

// AlarmRecord is the wire form of an alarm.
//
// Days are numbered Saturday=0, Sunday=1 .. Friday=6, which is the platform
// calendar numbering taken mod 7. Nothing past this package sees it.
type AlarmRecord struct {
	UID            string `json:"uid"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Hour           int    `json:"hour"`
	Minutes        int    `json:"minutes"`
	SnoozeInterval int    `json:"snoozeInterval"`
	Days           []int  `json:"days"`
	Repeating      bool   `json:"repeating"`
	Active         bool   `json:"active"`
}

// NewRecord returns the record a client gets when it fills in nothing: a
// one-shot alarm one minute from now, today.
func NewRecord(now time.Time, snooze int) AlarmRecord {
	at := now.Add(time.Minute)
	return AlarmRecord{
		UID:            uuid.NewString(),
		Title:          "Alarm",
		Description:    "Wake up",
		Hour:           at.Hour(),
		Minutes:        at.Minute(),
		SnoozeInterval: snooze,
		Days:           []int{toRecordDay(now.Weekday())},
		Repeating:      false,
		Active:         true,
	}
}

func toRecordDay(day time.Weekday) int {
	return (int(day) + 1) % 7
}

func fromRecordDay(day int) (time.Weekday, error) {
	if day < 0 || day > 6 {
		return 0, fmt.Errorf("%w: day %d out of range 0-6", models.ErrInvalidAlarm, day)
	}
	if day == 0 {
		return time.Saturday, nil
	}
	return time.Weekday(day - 1), nil
}

// FromAlarm maps an alarm to its record
func FromAlarm(alarm models.Alarm) AlarmRecord {
	days := make([]int, 0, len(alarm.Days))
	for _, d := range alarm.Days {
		days = append(days, toRecordDay(d))
	}
	return AlarmRecord{
		UID:            alarm.UID,
		Title:          alarm.Title,
		Description:    alarm.Description,
		Hour:           alarm.Hour,
		Minutes:        alarm.Minutes,
		SnoozeInterval: alarm.SnoozeInterval,
		Days:           days,
		Repeating:      alarm.Repeating,
		Active:         alarm.Active,
	}
}

// ToAlarm maps a record to an alarm, rejecting days outside the record range
func (r AlarmRecord) ToAlarm() (models.Alarm, error) {
	days := make([]time.Weekday, 0, len(r.Days))
	for _, d := range r.Days {
		day, err := fromRecordDay(d)
		if err != nil {
			return models.Alarm{}, err
		}
		days = append(days, day)
	}
	return models.Alarm{
		UID:            r.UID,
		Days:           days,
		Hour:           r.Hour,
		Minutes:        r.Minutes,
		SnoozeInterval: r.SnoozeInterval,
		Title:          r.Title,
		Description:    r.Description,
		Repeating:      r.Repeating,
		Active:         r.Active,
	}, nil
}

func fromAlarms(alarms []models.Alarm) []AlarmRecord {
	records := make([]AlarmRecord, 0, len(alarms))
	for _, a := range alarms {
		records = append(records, FromAlarm(a))
	}
	return records
}
