package calendar

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

const productID = "-//borgmon//alarm-clock//EN"

// floating DATE-TIME without a zone designator
const floatingLayout = "20060102T150405"

// Export writes alarms as a VCALENDAR with one VEVENT per alarm.
//
// Repeating alarms get an unbounded weekly RRULE over their days. One-shot
// alarms get COUNT equal to their day count so each day rings once. DTSTART is
// the earliest upcoming occurrence after now in loc.
func Export(w io.Writer, alarms []models.Alarm, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for _, alarm := range alarms {
		cal.Children = append(cal.Children, alarmEvent(alarm, now).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func alarmEvent(alarm models.Alarm, now time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, alarm.UID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetText(ical.PropSummary, alarm.Title)
	if alarm.Description != "" {
		event.Props.SetText(ical.PropDescription, alarm.Description)
	}
	event.Props.SetText(PropSnoozeInterval, strconv.Itoa(alarm.SnoozeInterval))
	event.Props.SetText(PropActive, strconv.FormatBool(alarm.Active))

	start := firstOccurrence(alarm, now)
	setLocalDateTime(event.Props, ical.PropDateTimeStart, start)

	if len(alarm.Days) > 0 {
		rule := &rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: make([]rrule.Weekday, 0, len(alarm.Days)),
		}
		for _, day := range alarm.Days {
			rule.Byweekday = append(rule.Byweekday, toRRuleWeekday(day))
		}
		if !alarm.Repeating {
			rule.Count = len(alarm.Days)
		}
		event.Props.SetRecurrenceRule(rule)
	}

	return event
}

func firstOccurrence(alarm models.Alarm, now time.Time) time.Time {
	if len(alarm.Days) == 0 {
		return NextOccurrence(now.Weekday(), alarm.Hour, alarm.Minutes, now)
	}
	var first time.Time
	for _, day := range alarm.Days {
		next := NextOccurrence(day, alarm.Hour, alarm.Minutes, now)
		if first.IsZero() || next.Before(first) {
			first = next
		}
	}
	return first
}

// setLocalDateTime writes t with a TZID when its zone has an IANA name and as
// floating time otherwise
func setLocalDateTime(props ical.Props, name string, t time.Time) {
	switch t.Location() {
	case time.UTC:
		props.SetDateTime(name, t)
	case time.Local:
		prop := ical.NewProp(name)
		prop.Value = t.Format(floatingLayout)
		props.Set(prop)
	default:
		props.SetDateTime(name, t)
	}
}
