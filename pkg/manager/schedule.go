package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/timer"
	"github.com/google/uuid"
)

// Schedule stores alarm and, when it is active, registers its occurrences.
// An alarm without a uid gets a generated one. Scheduling a uid that already
// exists replaces it like Update.
func (m *Manager) Schedule(ctx context.Context, alarm models.Alarm) (models.Alarm, error) {
	alarm = alarm.Clone()
	if alarm.UID == "" {
		alarm.UID = uuid.NewString()
	}
	if err := m.check(&alarm); err != nil {
		return models.Alarm{}, err
	}

	unlock := m.locks.Lock(alarm.UID)
	err := m.apply(ctx, alarm)
	unlock()

	m.after(ctx, "schedule", err)
	if err != nil {
		return models.Alarm{}, err
	}
	log.Printf("[MANAGER] Scheduled %s at %s (active=%v, repeating=%v, days=%v)",
		alarm.UID, alarm.TimeString(), alarm.Active, alarm.Repeating, alarm.Days)
	return alarm, nil
}

// Update replaces a stored alarm. New timers are registered and stored
// before the old ones are cancelled. An unknown uid is created.
func (m *Manager) Update(ctx context.Context, alarm models.Alarm) error {
	alarm = alarm.Clone()
	if err := m.check(&alarm); err != nil {
		return err
	}

	unlock := m.locks.Lock(alarm.UID)
	err := m.apply(ctx, alarm)
	unlock()

	m.after(ctx, "update", err)
	if err == nil {
		log.Printf("[MANAGER] Updated %s", alarm.UID)
	}
	return err
}

// Remove deletes an alarm and everything scheduled for it. Removing an
// unknown uid is a no-op.
func (m *Manager) Remove(ctx context.Context, uid string) error {
	unlock := m.locks.Lock(uid)
	err := m.remove(ctx, uid)
	unlock()

	m.after(ctx, "remove", err)
	return err
}

// RemoveAll removes every stored alarm and any orphaned occurrence set
func (m *Manager) RemoveAll(ctx context.Context) error {
	alarms, err := m.GetAll(ctx)
	if err != nil {
		return err
	}
	sets, err := m.store.GetAllDates(ctx)
	if err != nil {
		return fmt.Errorf("%w: list occurrence sets: %w", ErrPersistence, err)
	}

	uids := make(map[string]bool, len(alarms)+len(sets))
	for _, alarm := range alarms {
		uids[alarm.UID] = true
	}
	for uid := range sets {
		uids[uid] = true
	}

	var errs []error
	for uid := range uids {
		if err := m.Remove(ctx, uid); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable activates an inactive alarm. Enabling an active alarm is a no-op.
func (m *Manager) Enable(ctx context.Context, uid string) error {
	return m.setActive(ctx, uid, true)
}

// Disable deactivates an active alarm, cancelling its timers and dropping
// its occurrence set. Disabling an inactive alarm is a no-op.
func (m *Manager) Disable(ctx context.Context, uid string) error {
	return m.setActive(ctx, uid, false)
}

func (m *Manager) setActive(ctx context.Context, uid string, active bool) error {
	op := "disable"
	if active {
		op = "enable"
	}

	unlock := m.locks.Lock(uid)
	err := func() error {
		alarm, err := m.loadAlarm(ctx, uid)
		if err != nil {
			return err
		}
		if alarm.Active == active {
			log.Printf("[MANAGER] %s: %s already active=%v, nothing to do", op, uid, active)
			return nil
		}
		alarm.Active = active
		if err := alarm.Validate(); err != nil {
			return err
		}
		return m.apply(ctx, *alarm)
	}()
	unlock()

	m.after(ctx, op, err)
	return err
}

// Reschedule rebuilds every active alarm's occurrence set from the current
// time, as needed after a restart. A failure on one alarm is logged and the
// rest are still processed; all failures are returned together.
func (m *Manager) Reschedule(ctx context.Context) error {
	alarms, err := m.GetAll(ctx)
	if err != nil {
		return err
	}
	sets, err := m.store.GetAllDates(ctx)
	if err != nil {
		return fmt.Errorf("%w: list occurrence sets: %w", ErrPersistence, err)
	}

	log.Printf("[BOOT] Rescheduling %d alarms", len(alarms))

	// stored ids stay taken until their old sets are retired
	reserved := m.reserveStored(sets)

	var errs []error
	known := make(map[string]bool, len(alarms))
	for _, alarm := range alarms {
		known[alarm.UID] = true

		unlock := m.locks.Lock(alarm.UID)
		err := m.reapply(ctx, alarm.UID)
		unlock()

		if err != nil {
			log.Printf("[BOOT] Warning: failed to reschedule %s: %v", alarm.UID, err)
			m.metrics.RescheduleFailed()
			errs = append(errs, fmt.Errorf("reschedule %s: %w", alarm.UID, err))
		}
	}

	for uid := range sets {
		if known[uid] {
			continue
		}
		unlock := m.locks.Lock(uid)
		err := m.dropOrphan(ctx, uid)
		unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}

	m.releaseUnheld(ctx, reserved)
	m.after(ctx, "reschedule", nil)
	return errors.Join(errs...)
}

// reapply rebuilds uid from its current stored record. Caller holds the uid
// lock.
func (m *Manager) reapply(ctx context.Context, uid string) error {
	alarm, err := m.loadAlarm(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.apply(ctx, *alarm)
}

// dropOrphan deletes the occurrence set of uid if no alarm owns it. Caller
// holds the uid lock.
func (m *Manager) dropOrphan(ctx context.Context, uid string) error {
	if _, err := m.loadAlarm(ctx, uid); !errors.Is(err, ErrNotFound) {
		return err
	}
	log.Printf("[BOOT] Dropping orphaned occurrence set of %s", uid)
	return m.remove(ctx, uid)
}

// reserveStored marks every id held by sets as taken and returns the ones
// that were free before
func (m *Manager) reserveStored(sets map[string]*models.AlarmDates) []int {
	var reserved []int
	for uid, dates := range sets {
		for _, id := range dates.NotificationIDs {
			err := m.ids.Reserve(id)
			switch {
			case err == nil:
				reserved = append(reserved, id)
			case errors.Is(err, timer.ErrInUse):
			default:
				log.Printf("[MANAGER] Warning: stored id of %s: %v", uid, err)
			}
		}
	}
	return reserved
}

// releaseUnheld returns the ids to the pool that no stored set holds and no
// timer uses
func (m *Manager) releaseUnheld(ctx context.Context, ids []int) {
	if len(ids) == 0 {
		return
	}
	sets, err := m.store.GetAllDates(ctx)
	if err != nil {
		log.Printf("[MANAGER] Warning: could not check reserved ids: %v", err)
		return
	}
	held := make(map[int]bool)
	for _, dates := range sets {
		for _, id := range dates.NotificationIDs {
			held[id] = true
		}
	}
	for _, id := range ids {
		if _, ok := m.timers.Owner(id); !held[id] && !ok {
			m.ids.Release(id)
		}
	}
}

// Housekeep re-registers any stored occurrence of an active alarm whose timer
// is missing. Occurrences that are ringing or queued are left alone; an
// overdue one fires right away. An occurrence whose id belongs to another
// alarm is moved to a fresh id.
func (m *Manager) Housekeep(ctx context.Context) (int, error) {
	alarms, err := m.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	sets, err := m.store.GetAllDates(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list occurrence sets: %w", ErrPersistence, err)
	}
	reserved := m.reserveStored(sets)

	// first claimant in uid order keeps a shared id
	claims := make(map[int]string)
	uids := make([]string, 0, len(sets))
	for uid := range sets {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	for _, uid := range uids {
		for _, id := range sets[uid].NotificationIDs {
			if _, ok := claims[id]; !ok {
				claims[id] = uid
			}
		}
	}

	inFlight := make(map[int]string)
	if r := m.ring.get(); r != nil {
		inFlight[r.NotificationID] = r.UID
	}
	for _, q := range m.ring.queued() {
		inFlight[q.NotificationID] = q.UID
	}

	repaired := 0
	for _, alarm := range alarms {
		if !alarm.Active {
			continue
		}
		unlock := m.locks.Lock(alarm.UID)
		n, err := m.repair(ctx, alarm.UID, inFlight, claims)
		unlock()
		repaired += n
		if err != nil {
			log.Printf("[MANAGER] Warning: housekeeping %s: %v", alarm.UID, err)
		}
	}
	m.releaseUnheld(ctx, reserved)

	if repaired > 0 {
		log.Printf("[MANAGER] Housekeeping re-registered %d timers", repaired)
	}
	m.metrics.Repaired(repaired)
	return repaired, nil
}

func (m *Manager) repair(ctx context.Context, uid string, inFlight, claims map[int]string) (int, error) {
	dates, err := m.loadDates(ctx, uid)
	if err != nil || dates == nil {
		return 0, err
	}

	// keeper is the alarm an id belongs to
	keeper := func(id int) string {
		if owner, ok := inFlight[id]; ok {
			return owner
		}
		if owner, ok := m.timers.Owner(id); ok {
			return owner
		}
		if owner, ok := claims[id]; ok {
			return owner
		}
		return uid
	}

	n := 0
	var moved []int
	for i, id := range dates.NotificationIDs {
		if keeper(id) == uid {
			if _, ok := inFlight[id]; ok {
				continue
			}
			if _, ok := m.timers.Owner(id); ok {
				continue
			}
		}

		if keeper(id) != uid || !m.claim(id) {
			fresh, err := m.ids.Acquire()
			if err != nil {
				m.undoMoves(moved)
				return 0, fmt.Errorf("%w: %w", ErrTimerService, err)
			}
			log.Printf("[MANAGER] Moving occurrence of %s from id %d to %d", uid, id, fresh)
			dates.NotificationIDs[i] = fresh
			moved = append(moved, fresh)
			id = fresh
		}

		single := &models.AlarmDates{
			AlarmUID:        uid,
			Dates:           dates.Dates[i : i+1],
			Days:            dates.Days[i : i+1],
			NotificationIDs: []int{id},
		}
		if err := m.register(single); err != nil {
			m.undoMoves(moved)
			return 0, err
		}
		n++
	}

	if len(moved) > 0 {
		if err := m.store.SaveDates(ctx, dates); err != nil {
			m.undoMoves(moved)
			return 0, fmt.Errorf("%w: save occurrences of %s: %w", ErrPersistence, uid, err)
		}
	}
	return n, nil
}

// claim marks id as taken and reports whether the pool can hold it
func (m *Manager) claim(id int) bool {
	err := m.ids.Reserve(id)
	return err == nil || errors.Is(err, timer.ErrInUse)
}

func (m *Manager) undoMoves(ids []int) {
	for _, id := range ids {
		m.timers.Cancel(id)
		m.ids.Release(id)
	}
}

func (m *Manager) check(alarm *models.Alarm) error {
	alarm.Normalize()
	return alarm.Validate()
}

// apply makes the stored state of alarm.UID match alarm. Caller holds the
// uid lock.
func (m *Manager) apply(ctx context.Context, alarm models.Alarm) error {
	uid := alarm.UID

	previous, err := m.loadAlarm(ctx, uid)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	oldDates, err := m.loadDates(ctx, uid)
	if err != nil {
		return err
	}

	m.silence(uid)

	var newDates *models.AlarmDates
	if alarm.Active {
		newDates, err = calendar.DeriveDates(alarm, m.now(), m.ids)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTimerService, err)
		}
		if err := m.register(newDates); err != nil {
			m.releaseIDs(newDates)
			return err
		}
	}

	if err := m.persist(ctx, alarm, newDates); err != nil {
		m.retire(newDates)
		m.restore(ctx, uid, previous)
		return err
	}

	m.retireExcept(oldDates, newDates)
	return nil
}

func (m *Manager) persist(ctx context.Context, alarm models.Alarm, dates *models.AlarmDates) error {
	if err := m.store.SaveAlarm(ctx, alarm); err != nil {
		return fmt.Errorf("%w: save alarm %s: %w", ErrPersistence, alarm.UID, err)
	}
	if dates != nil {
		if err := m.store.SaveDates(ctx, dates); err != nil {
			return fmt.Errorf("%w: save occurrences of %s: %w", ErrPersistence, alarm.UID, err)
		}
		return nil
	}
	if err := m.store.DeleteDates(ctx, alarm.UID); err != nil {
		return fmt.Errorf("%w: delete occurrences of %s: %w", ErrPersistence, alarm.UID, err)
	}
	return nil
}

// restore puts back the alarm record that was stored before a failed write
func (m *Manager) restore(ctx context.Context, uid string, previous *models.Alarm) {
	var err error
	if previous != nil {
		err = m.store.SaveAlarm(ctx, *previous)
	} else {
		err = m.store.DeleteAlarm(ctx, uid)
	}
	if err != nil {
		log.Printf("[MANAGER] Warning: could not restore %s after failed write: %v", uid, err)
	}
}

func (m *Manager) remove(ctx context.Context, uid string) error {
	if _, err := m.loadAlarm(ctx, uid); errors.Is(err, ErrNotFound) {
		dates, derr := m.loadDates(ctx, uid)
		if derr != nil || dates == nil {
			log.Printf("[MANAGER] remove: %s not found, nothing to do", uid)
			return derr
		}
	} else if err != nil {
		return err
	}

	m.silence(uid)

	dates, err := m.loadDates(ctx, uid)
	if err != nil {
		return err
	}

	if err := m.store.DeleteAlarm(ctx, uid); err != nil {
		return fmt.Errorf("%w: delete alarm %s: %w", ErrPersistence, uid, err)
	}
	// the alarm is gone, so its timers go even if the set cannot be deleted
	m.retire(dates)
	if err := m.store.DeleteDates(ctx, uid); err != nil {
		return fmt.Errorf("%w: delete occurrences of %s: %w", ErrPersistence, uid, err)
	}

	log.Printf("[MANAGER] Removed %s", uid)
	return nil
}

// after records the outcome of a public operation and lets a queued alarm
// ring if the slot is free. Caller must not hold any uid lock.
func (m *Manager) after(ctx context.Context, op string, err error) {
	if err != nil {
		m.metrics.OperationFailed(op)
		log.Printf("[MANAGER] %s failed: %v", op, err)
	}
	m.startNext(ctx)
	m.changed()
}
