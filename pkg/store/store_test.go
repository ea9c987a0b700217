package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Backend{
		"memory":      NewMemoryBackend(),
		"sqlite":      sqlite,
		"preferences": NewPreferencesBackend(test.NewTempApp(t)),
	}
}

func TestBackend_Contract(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Put(ctx, "a", []byte("1")))
			require.NoError(t, b.Put(ctx, "a_DATES", []byte("2")))
			require.NoError(t, b.Put(ctx, "a", []byte("3")))

			v, err := b.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("3"), v)

			all, err := b.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"a": []byte("3"), "a_DATES": []byte("2")}, all)

			require.NoError(t, b.Delete(ctx, "a"))
			require.NoError(t, b.Delete(ctx, "never-there"))

			_, err = b.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			all, err = b.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/db/alarms.db"

	b, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "k", []byte("v")))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(path)
	require.NoError(t, err)
	defer b.Close()

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestAlarmStore_AlarmsAndDatesAreSeparated(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			as := NewAlarmStore(b)

			late := models.Alarm{UID: "late", Days: []time.Weekday{time.Monday}, Hour: 9, Repeating: true, Active: true}
			early := models.Alarm{UID: "early", Days: []time.Weekday{time.Friday}, Hour: 6, Minutes: 30, Active: true}
			require.NoError(t, as.SaveAlarm(ctx, late))
			require.NoError(t, as.SaveAlarm(ctx, early))

			fire := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
			dates := &models.AlarmDates{
				AlarmUID:        "late",
				Dates:           []time.Time{fire},
				Days:            []time.Weekday{time.Monday},
				NotificationIDs: []int{4},
			}
			require.NoError(t, as.SaveDates(ctx, dates))

			alarms, err := as.GetAllAlarms(ctx)
			require.NoError(t, err)
			assert.Equal(t, []models.Alarm{early, late}, alarms)

			got, err := as.GetAlarm(ctx, "late")
			require.NoError(t, err)
			assert.Equal(t, late, *got)

			gotDates, err := as.GetDates(ctx, "late")
			require.NoError(t, err)
			assert.Equal(t, []int{4}, gotDates.NotificationIDs)
			assert.True(t, fire.Equal(gotDates.Dates[0]))

			allDates, err := as.GetAllDates(ctx)
			require.NoError(t, err)
			assert.Len(t, allDates, 1)
			assert.Contains(t, allDates, "late")

			_, err = as.GetDates(ctx, "early")
			assert.True(t, IsNotFound(err))

			require.NoError(t, as.DeleteDates(ctx, "late"))
			require.NoError(t, as.DeleteAlarm(ctx, "late"))
			_, err = as.GetAlarm(ctx, "late")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAlarmStore_RejectsReservedSuffix(t *testing.T) {
	as := NewAlarmStore(NewMemoryBackend())
	err := as.SaveAlarm(context.Background(), models.Alarm{UID: "x_DATES"})
	assert.ErrorIs(t, err, models.ErrInvalidAlarm)
}

func TestAlarmStore_SkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, "broken", []byte("{")))
	require.NoError(t, b.Put(ctx, "ok", []byte(`{"uid":"ok","hour":7}`)))

	alarms, err := NewAlarmStore(b).GetAllAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, "ok", alarms[0].UID)
}

func TestMemoryBackend_FailWrites(t *testing.T) {
	boom := errors.New("disk full")
	b := NewMemoryBackend()
	b.FailWrites = boom

	assert.ErrorIs(t, b.Put(context.Background(), "k", nil), boom)
	assert.ErrorIs(t, b.Delete(context.Background(), "k"), boom)
}
