package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// Custom VEVENT properties carrying alarm fields iCalendar has no slot for
const (
	PropSnoozeInterval = "X-ALARM-SNOOZE"
	PropActive         = "X-ALARM-ACTIVE"
)

// parsedEvent is a VEVENT reduced to what an alarm needs
type parsedEvent struct {
	UID         string
	Title       string
	Description string
	Status      string
	Start       time.Time
	AllDay      bool
	Rule        *rrule.ROption
	Snooze      int
	HasSnooze   bool
	Active      bool
}

// parseEvent reads comp with wall-clock times expressed in loc
func parseEvent(comp *ical.Component, loc *time.Location) (parsedEvent, error) {
	normalizeComponentTimezones(comp)

	event := parsedEvent{Active: true}

	if uidProp := comp.Props.Get(ical.PropUID); uidProp != nil {
		event.UID = uidProp.Value
	}
	if summaryProp := comp.Props.Get(ical.PropSummary); summaryProp != nil {
		event.Title = summaryProp.Value
	}
	if descProp := comp.Props.Get(ical.PropDescription); descProp != nil {
		event.Description = descProp.Value
	}
	if statusProp := comp.Props.Get(ical.PropStatus); statusProp != nil {
		event.Status = strings.ToUpper(statusProp.Value)
	}

	if startProp := comp.Props.Get(ical.PropDateTimeStart); startProp != nil {
		event.AllDay = startProp.ValueType() == ical.ValueDate
		t, err := parseDateTimeProperty(startProp, getTimezoneFromComponent(comp, loc), loc)
		if err != nil {
			return event, err
		}
		event.Start = t
	}

	rule, err := comp.Props.RecurrenceRule()
	if err != nil {
		return event, fmt.Errorf("invalid RRULE: %w", err)
	}
	event.Rule = rule

	if snoozeProp := comp.Props.Get(PropSnoozeInterval); snoozeProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(snoozeProp.Value)); err == nil && n >= 0 {
			event.Snooze = n
			event.HasSnooze = true
		}
	}
	if activeProp := comp.Props.Get(PropActive); activeProp != nil {
		event.Active = !strings.EqualFold(strings.TrimSpace(activeProp.Value), "FALSE")
	}

	return event, nil
}

func parseDateTimeProperty(prop *ical.Prop, loc, out *time.Location) (time.Time, error) {
	if t, err := prop.DateTime(loc); err == nil {
		return t.In(out), nil
	}

	value := prop.Value
	formats := []string{
		"20060102T150405",
		"20060102T150405Z",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t.In(out), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", value)
}

// toAlarm converts an imported event into an alarm.
//
// Weekly rules keep their BYDAY set and daily rules ring every day. A rule
// bounded by COUNT or UNTIL is a one-shot alarm, as is an event without a
// rule, which rings on DTSTART's weekday.
func (e parsedEvent) toAlarm(defaultSnooze int) models.Alarm {
	alarm := models.Alarm{
		UID:            e.UID,
		Hour:           e.Start.Hour(),
		Minutes:        e.Start.Minute(),
		SnoozeInterval: defaultSnooze,
		Title:          e.Title,
		Description:    e.Description,
		Active:         e.Active,
	}
	if e.HasSnooze {
		alarm.SnoozeInterval = e.Snooze
	}

	switch {
	case e.Rule == nil:
		alarm.Days = []time.Weekday{e.Start.Weekday()}
	case e.Rule.Freq == rrule.DAILY:
		alarm.Days = allWeekdays()
		alarm.Repeating = isUnbounded(e.Rule)
	default:
		for _, wd := range e.Rule.Byweekday {
			alarm.Days = append(alarm.Days, fromRRuleWeekday(wd))
		}
		if len(alarm.Days) == 0 {
			alarm.Days = []time.Weekday{e.Start.Weekday()}
		}
		alarm.Repeating = isUnbounded(e.Rule)
	}

	alarm.Normalize()
	return alarm
}

func isUnbounded(rule *rrule.ROption) bool {
	return rule.Count == 0 && rule.Until.IsZero()
}

func allWeekdays() []time.Weekday {
	return []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}
}

// rrule numbers weekdays Monday=0 .. Sunday=6
func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	weekdays := []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}
	return weekdays[day]
}
