package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/borgmon/alarm-clock/pkg/models"
)

// AlarmStore reads and writes alarms and their occurrence sets in a Backend.
// An alarm lives under its uid and its set under uid + "_DATES".
type AlarmStore struct {
	backend Backend
}

func NewAlarmStore(backend Backend) *AlarmStore {
	return &AlarmStore{backend: backend}
}

func (as *AlarmStore) SaveAlarm(ctx context.Context, alarm models.Alarm) error {
	if models.IsDatesKey(alarm.UID) {
		return fmt.Errorf("%w: uid %q uses the reserved %s suffix", models.ErrInvalidAlarm, alarm.UID, models.DatesSuffix)
	}
	return as.put(ctx, alarm.UID, alarm)
}

// GetAlarm returns ErrNotFound when uid is unknown
func (as *AlarmStore) GetAlarm(ctx context.Context, uid string) (*models.Alarm, error) {
	var alarm models.Alarm
	if err := as.get(ctx, uid, &alarm); err != nil {
		return nil, err
	}
	return &alarm, nil
}

func (as *AlarmStore) DeleteAlarm(ctx context.Context, uid string) error {
	return as.backend.Delete(ctx, uid)
}

func (as *AlarmStore) SaveDates(ctx context.Context, dates *models.AlarmDates) error {
	return as.put(ctx, dates.Key(), dates)
}

// GetDates returns ErrNotFound when the alarm has no occurrence set
func (as *AlarmStore) GetDates(ctx context.Context, uid string) (*models.AlarmDates, error) {
	var dates models.AlarmDates
	if err := as.get(ctx, models.DatesKey(uid), &dates); err != nil {
		return nil, err
	}
	return &dates, nil
}

func (as *AlarmStore) DeleteDates(ctx context.Context, uid string) error {
	return as.backend.Delete(ctx, models.DatesKey(uid))
}

// GetAllAlarms returns every stored alarm ordered by time of day then uid.
// Records that fail to decode are logged and skipped.
func (as *AlarmStore) GetAllAlarms(ctx context.Context) ([]models.Alarm, error) {
	all, err := as.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	alarms := make([]models.Alarm, 0, len(all))
	for key, value := range all {
		if models.IsDatesKey(key) {
			continue
		}
		var alarm models.Alarm
		if err := json.Unmarshal(value, &alarm); err != nil {
			log.Printf("[STORE] Warning: skipping undecodable alarm %s: %v", key, err)
			continue
		}
		alarms = append(alarms, alarm)
	}

	sort.Slice(alarms, func(i, j int) bool {
		a, b := alarms[i], alarms[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minutes != b.Minutes {
			return a.Minutes < b.Minutes
		}
		return a.UID < b.UID
	})
	return alarms, nil
}

// GetAllDates returns every stored occurrence set keyed by alarm uid
func (as *AlarmStore) GetAllDates(ctx context.Context) (map[string]*models.AlarmDates, error) {
	all, err := as.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*models.AlarmDates)
	for key, value := range all {
		if !models.IsDatesKey(key) {
			continue
		}
		var dates models.AlarmDates
		if err := json.Unmarshal(value, &dates); err != nil {
			log.Printf("[STORE] Warning: skipping undecodable occurrence set %s: %v", key, err)
			continue
		}
		out[dates.AlarmUID] = &dates
	}
	return out, nil
}

func (as *AlarmStore) Close() error {
	return as.backend.Close()
}

func (as *AlarmStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return as.backend.Put(ctx, key, data)
}

func (as *AlarmStore) get(ctx context.Context, key string, v any) error {
	data, err := as.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err means the key was absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
