package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

type counterIDs struct {
	next     int
	limit    int
	released []int
}

func (c *counterIDs) Acquire() (int, error) {
	if c.limit > 0 && c.next >= c.limit {
		return 0, errors.New("exhausted")
	}
	c.next++
	return c.next, nil
}

func (c *counterIDs) Release(id int) { c.released = append(c.released, id) }

func TestNextOccurrence(t *testing.T) {
	// Monday 2026-10-19
	mon := func(h, m int) time.Time { return time.Date(2026, 10, 19, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		day  time.Weekday
		now  time.Time
		want time.Time
	}{
		{"later today", time.Monday, mon(6, 0), mon(7, 0)},
		{"exactly now moves a week", time.Monday, mon(7, 0), mon(7, 0).AddDate(0, 0, 7)},
		{"earlier today moves a week", time.Monday, mon(8, 0), mon(7, 0).AddDate(0, 0, 7)},
		{"later this week", time.Friday, mon(8, 0), mon(7, 0).AddDate(0, 0, 4)},
		{"sunday already passed", time.Sunday, mon(8, 0), mon(7, 0).AddDate(0, 0, 6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(tt.day, 7, 0, tt.now)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.now))
			assert.Equal(t, tt.day, got.Weekday())
		})
	}
}

func TestNextOccurrence_SundayEvening(t *testing.T) {
	sun := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	got := NextOccurrence(time.Monday, 7, 0, sun)
	assert.Equal(t, time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC), got)
}

func TestNextOccurrence_AppliedToItselfAddsAWeek(t *testing.T) {
	now := time.Date(2026, 10, 21, 13, 37, 0, 0, time.UTC)
	for day := time.Sunday; day <= time.Saturday; day++ {
		first := NextOccurrence(day, 9, 30, now)
		assert.Equal(t, first.AddDate(0, 0, 7), NextOccurrence(day, 9, 30, first))
	}
}

func TestNextOccurrence_MatchesRRule(t *testing.T) {
	now := time.Date(2026, 10, 21, 13, 37, 0, 0, time.UTC)
	for day := time.Sunday; day <= time.Saturday; day++ {
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{toRRuleWeekday(day)},
			Byhour:    []int{6},
			Byminute:  []int{45},
			Bysecond:  []int{0},
			Dtstart:   now.Truncate(24 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, rule.After(now, false), NextOccurrence(day, 6, 45, now), day.String())
	}
}

func TestNextWeek(t *testing.T) {
	fired := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)

	assert.Equal(t, fired.AddDate(0, 0, 7), NextWeek(time.Monday, 7, 0, fired, fired.Add(30*time.Second)))
	// stopped before the nominal time, e.g. after an early manual start
	assert.Equal(t, fired.AddDate(0, 0, 7), NextWeek(time.Monday, 7, 0, fired, fired.Add(-time.Hour)))
	// stopped more than a week late
	late := fired.AddDate(0, 0, 8)
	assert.Equal(t, fired.AddDate(0, 0, 14), NextWeek(time.Monday, 7, 0, fired, late))
}

func TestSnooze(t *testing.T) {
	now := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(5*time.Minute), Snooze(now, 5))
	assert.Equal(t, now, Snooze(now, 0))
}

func TestDeriveDates(t *testing.T) {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	alarm := models.Alarm{
		UID:   "a",
		Days:  []time.Weekday{time.Monday, time.Wednesday},
		Hour:  7,
		Title: "Alarm",
	}
	ids := &counterIDs{}

	dates, err := DeriveDates(alarm, now, ids)
	require.NoError(t, err)

	assert.Equal(t, "a", dates.AlarmUID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, dates.Days)
	assert.Equal(t, []int{1, 2}, dates.NotificationIDs)
	assert.Equal(t, []time.Time{
		time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 21, 7, 0, 0, 0, time.UTC),
	}, dates.Dates)

	again, err := DeriveDates(alarm, now, ids)
	require.NoError(t, err)
	assert.NotEqual(t, dates.NotificationIDs, again.NotificationIDs)
}

func TestDeriveDates_ReleasesOnExhaustion(t *testing.T) {
	alarm := models.Alarm{UID: "a", Days: []time.Weekday{time.Monday, time.Tuesday, time.Friday}}
	ids := &counterIDs{limit: 2}

	_, err := DeriveDates(alarm, time.Now(), ids)
	require.Error(t, err)
	assert.ElementsMatch(t, []int{1, 2}, ids.released)
}
