package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/config"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timer"
)

// rejected fires come back after at least this long
const minRetry = time.Minute

// HandleFire is the timer callback. It rings the fired occurrence.
func (m *Manager) HandleFire(p timer.Payload, at time.Time) {
	ctx := context.Background()
	log.Printf("[TIMER] Fired %s (notification %d, due %s)", p.AlarmUID, p.NotificationID, at.Format(time.RFC3339))

	if err := m.start(ctx, p.AlarmUID, p.NotificationID); err != nil {
		log.Printf("[MANAGER] Warning: fire of %s not handled: %v", p.AlarmUID, err)
	}
	m.changed()
}

// Start rings uid now using its earliest occurrence
func (m *Manager) Start(ctx context.Context, uid string) error {
	dates, err := m.Dates(ctx, uid)
	if err != nil {
		return err
	}
	earliest := -1
	for i, d := range dates.Dates {
		if earliest < 0 || d.Before(dates.Dates[earliest]) {
			earliest = i
		}
	}
	if earliest < 0 {
		return fmt.Errorf("%w: %s has no occurrences", ErrNotFound, uid)
	}

	err = m.start(ctx, uid, dates.NotificationIDs[earliest])
	m.changed()
	return err
}

func (m *Manager) start(ctx context.Context, uid string, nid int) error {
	unlock := m.locks.Lock(uid)
	defer unlock()

	alarm, err := m.loadAlarm(ctx, uid)
	if err != nil {
		m.metrics.Fired("stale")
		return err
	}
	if !alarm.Active {
		m.metrics.Fired("stale")
		return fmt.Errorf("%w: %s is inactive", ErrNotFound, uid)
	}
	dates, err := m.loadDates(ctx, uid)
	if err != nil {
		return err
	}
	i := -1
	if dates != nil {
		i = dates.Index(nid)
	}
	if i < 0 {
		m.metrics.Fired("stale")
		return fmt.Errorf("%w: %s has no occurrence %d", ErrNotFound, uid, nid)
	}

	r := &ringing{UID: uid, NotificationID: nid, FiredAt: dates.Dates[i]}
	if !m.ring.claim(r) {
		return m.busy(ctx, *alarm, dates, nid)
	}

	dates.CurrentNotificationID = nid
	if err := m.store.SaveDates(ctx, dates); err != nil {
		m.ring.release(r)
		return fmt.Errorf("%w: mark %s ringing: %w", ErrPersistence, uid, err)
	}

	session, err := m.presenter.Present(*alarm)
	if err != nil {
		m.ring.release(r)
		return fmt.Errorf("present %s: %w", uid, err)
	}
	m.ring.setSession(r, session)

	m.metrics.Fired("rang")
	log.Printf("[MANAGER] %s is ringing (occurrence %d)", uid, nid)
	return nil
}

// busy handles a fire that arrives while another alarm rings
func (m *Manager) busy(ctx context.Context, alarm models.Alarm, dates *models.AlarmDates, nid int) error {
	current, _ := m.ActiveAlarm()

	if m.policy != config.RingingReject {
		if m.ring.enqueue(queuedFire{UID: alarm.UID, NotificationID: nid}) {
			m.metrics.FireQueued()
			log.Printf("[MANAGER] %s queued behind ringing %s", alarm.UID, current)
		}
		return nil
	}

	retry := calendar.Snooze(m.now(), alarm.SnoozeInterval)
	if floor := m.now().Add(minRetry); retry.Before(floor) {
		retry = floor
	}
	dates.Update(nid, retry)
	if err := m.store.SaveDates(ctx, dates); err != nil {
		return fmt.Errorf("%w: defer rejected %s: %w", ErrPersistence, alarm.UID, err)
	}
	if err := m.timers.ScheduleOnce(nid, retry, timer.Payload{AlarmUID: alarm.UID, NotificationID: nid}); err != nil {
		return fmt.Errorf("%w: defer rejected %s: %w", ErrTimerService, alarm.UID, err)
	}

	m.metrics.FireRejected()
	log.Printf("[MANAGER] %s rejected while %s rings, retrying at %s", alarm.UID, current, retry.Format("15:04"))
	return nil
}

// Stop ends the ringing alarm. A repeating alarm moves the fired occurrence
// to its next weekly slot; a one-shot alarm becomes inactive.
func (m *Manager) Stop(ctx context.Context) error {
	return m.StopAlarm(ctx, "")
}

// StopAlarm is Stop that only acts when uid is the ringing alarm. An empty
// uid matches whatever rings.
func (m *Manager) StopAlarm(ctx context.Context, uid string) error {
	err := m.resolve(ctx, uid, m.stopRinging)
	m.after(ctx, "stop", ignoreNoActive(err))
	return err
}

// Snooze defers the ringing occurrence by the alarm's snooze interval
func (m *Manager) Snooze(ctx context.Context) error {
	return m.SnoozeAlarm(ctx, "")
}

// SnoozeAlarm is Snooze that only acts when uid is the ringing alarm
func (m *Manager) SnoozeAlarm(ctx context.Context, uid string) error {
	err := m.resolve(ctx, uid, m.snoozeRinging)
	m.after(ctx, "snooze", ignoreNoActive(err))
	return err
}

// Dismiss handles a dismissed notification according to the configured
// dismiss action
func (m *Manager) Dismiss(ctx context.Context, uid string) error {
	switch m.dismiss {
	case config.DismissSnooze:
		return m.SnoozeAlarm(ctx, uid)
	case config.DismissStop:
		return m.StopAlarm(ctx, uid)
	default:
		log.Printf("[MANAGER] Notification of %s dismissed, no action", uid)
		return nil
	}
}

type resolver func(ctx context.Context, r *ringing, alarm *models.Alarm, dates *models.AlarmDates, i int) error

// resolve takes the ringing slot from r, stops its sound and hands the
// fired occurrence to fn
func (m *Manager) resolve(ctx context.Context, expected string, fn resolver) error {
	r := m.ring.get()
	if r == nil || (expected != "" && r.UID != expected) {
		return ErrNoActiveAlarm
	}

	unlock := m.locks.Lock(r.UID)
	defer unlock()

	if !m.ring.release(r) {
		// stopped, removed or edited while we waited for the lock
		return ErrNoActiveAlarm
	}
	if r.session != nil {
		r.session.Stop()
	}

	alarm, err := m.loadAlarm(ctx, r.UID)
	if err != nil {
		return err
	}
	dates, err := m.loadDates(ctx, r.UID)
	if err != nil {
		return err
	}
	i := -1
	if dates != nil {
		i = dates.Index(r.NotificationID)
	}
	if i < 0 {
		return fmt.Errorf("%w: %s has no occurrence %d", ErrNotFound, r.UID, r.NotificationID)
	}
	dates.CurrentNotificationID = 0

	return fn(ctx, r, alarm, dates, i)
}

func (m *Manager) stopRinging(ctx context.Context, r *ringing, alarm *models.Alarm, dates *models.AlarmDates, i int) error {
	if !alarm.Repeating {
		// a one-shot alarm is done: every sibling occurrence goes too
		alarm.Active = false
		if err := m.store.SaveAlarm(ctx, *alarm); err != nil {
			return fmt.Errorf("%w: deactivate %s: %w", ErrPersistence, alarm.UID, err)
		}
		m.retire(dates)
		if err := m.store.DeleteDates(ctx, alarm.UID); err != nil {
			return fmt.Errorf("%w: delete occurrences of %s: %w", ErrPersistence, alarm.UID, err)
		}
		m.metrics.Stopped(false)
		log.Printf("[MANAGER] Stopped one-shot %s, now inactive", alarm.UID)
		return nil
	}

	next := calendar.NextWeek(dates.Days[i], alarm.Hour, alarm.Minutes, r.FiredAt.In(m.loc), m.now())
	if err := m.reschedule(ctx, dates, r.NotificationID, next); err != nil {
		return err
	}
	m.metrics.Stopped(true)
	log.Printf("[MANAGER] Stopped %s, next at %s", alarm.UID, next.Format(time.RFC3339))
	return nil
}

func (m *Manager) snoozeRinging(ctx context.Context, r *ringing, alarm *models.Alarm, dates *models.AlarmDates, _ int) error {
	next := calendar.Snooze(m.now(), alarm.SnoozeInterval)
	if err := m.reschedule(ctx, dates, r.NotificationID, next); err != nil {
		return err
	}
	m.metrics.Snoozed()
	log.Printf("[MANAGER] Snoozed %s for %d min", alarm.UID, alarm.SnoozeInterval)
	return nil
}

// reschedule moves one occurrence in place, persists the set and registers
// its single timer
func (m *Manager) reschedule(ctx context.Context, dates *models.AlarmDates, nid int, next time.Time) error {
	dates.Update(nid, next)
	if err := m.store.SaveDates(ctx, dates); err != nil {
		return fmt.Errorf("%w: save occurrences of %s: %w", ErrPersistence, dates.AlarmUID, err)
	}
	if err := m.timers.ScheduleOnce(nid, next, timer.Payload{AlarmUID: dates.AlarmUID, NotificationID: nid}); err != nil {
		return fmt.Errorf("%w: register %s: %w", ErrTimerService, dates.AlarmUID, err)
	}
	return nil
}

func ignoreNoActive(err error) error {
	if errors.Is(err, ErrNoActiveAlarm) {
		return nil
	}
	return err
}

// startNext rings queued fires until one rings or the queue is empty
func (m *Manager) startNext(ctx context.Context) {
	for {
		f, ok := m.ring.next()
		if !ok {
			return
		}
		if err := m.start(ctx, f.UID, f.NotificationID); err != nil {
			log.Printf("[MANAGER] Skipping queued %s: %v", f.UID, err)
			continue
		}
		if _, ringing := m.ActiveAlarm(); ringing {
			return
		}
	}
}
