// Package manager is the alarm scheduling engine. It turns alarms into
// registered timers, keeps stored occurrence sets consistent with them and
// drives the ringing lifecycle.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/borgmon/alarm-clock/pkg/config"
	"github.com/borgmon/alarm-clock/pkg/metrics"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/notify"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timer"
)

// Store persists alarms and occurrence sets
type Store interface {
	SaveAlarm(ctx context.Context, alarm models.Alarm) error
	GetAlarm(ctx context.Context, uid string) (*models.Alarm, error)
	DeleteAlarm(ctx context.Context, uid string) error
	SaveDates(ctx context.Context, dates *models.AlarmDates) error
	GetDates(ctx context.Context, uid string) (*models.AlarmDates, error)
	DeleteDates(ctx context.Context, uid string) error
	GetAllAlarms(ctx context.Context) ([]models.Alarm, error)
	GetAllDates(ctx context.Context) (map[string]*models.AlarmDates, error)
}

// Timers registers one-shot callbacks keyed by notification id
type Timers interface {
	ScheduleOnce(id int, at time.Time, payload timer.Payload) error
	Cancel(id int) bool
	// Owner returns the alarm uid of the timer registered for id
	Owner(id int) (string, bool)
}

// IDs allocates notification ids
type IDs interface {
	Acquire() (int, error)
	Release(id int)
	Reserve(id int) error
}

// Presenter starts the sound and notification of a ringing alarm
type Presenter interface {
	Present(alarm models.Alarm) (notify.Sound, error)
}

type Options struct {
	Store     Store
	Timers    Timers
	IDs       IDs
	Presenter Presenter
	Metrics   *metrics.Registry

	// Now defaults to time.Now
	Now func() time.Time
	// Location is the zone alarm times are interpreted in, default time.Local
	Location *time.Location

	RingingPolicy string
	DismissAction string

	// OnChange is called after any change to alarms or the ringing state
	OnChange func()
}

// Manager is the scheduling engine
type Manager struct {
	store     Store
	timers    Timers
	ids       IDs
	presenter Presenter
	metrics   *metrics.Registry

	clock    func() time.Time
	loc      *time.Location
	policy   string
	dismiss  string
	onChange func()

	locks *keyedMutex
	ring  ringSlot
}

func New(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		timers:    opts.Timers,
		ids:       opts.IDs,
		presenter: opts.Presenter,
		metrics:   opts.Metrics,
		clock:     opts.Now,
		loc:       opts.Location,
		policy:    opts.RingingPolicy,
		dismiss:   opts.DismissAction,
		onChange:  opts.OnChange,
		locks:     newKeyedMutex(),
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.policy == "" {
		m.policy = config.RingingQueue
	}
	if m.dismiss == "" {
		m.dismiss = config.DismissNone
	}
	return m
}

func (m *Manager) now() time.Time {
	return m.clock().In(m.loc)
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}

// Get returns the stored alarm with uid
func (m *Manager) Get(ctx context.Context, uid string) (models.Alarm, error) {
	alarm, err := m.loadAlarm(ctx, uid)
	if err != nil {
		return models.Alarm{}, err
	}
	return *alarm, nil
}

// GetAll returns every stored alarm
func (m *Manager) GetAll(ctx context.Context) ([]models.Alarm, error) {
	alarms, err := m.store.GetAllAlarms(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list alarms: %w", ErrPersistence, err)
	}
	return alarms, nil
}

// ActiveAlarm returns the uid of the ringing alarm
func (m *Manager) ActiveAlarm() (string, bool) {
	r := m.ring.get()
	if r == nil {
		return "", false
	}
	return r.UID, true
}

// Queued returns the uids waiting to ring, oldest first
func (m *Manager) Queued() []string {
	var uids []string
	for _, q := range m.ring.queued() {
		uids = append(uids, q.UID)
	}
	return uids
}

// Upcoming is the next fire of one active alarm
type Upcoming struct {
	Alarm models.Alarm
	Next  time.Time
}

// Upcoming lists active alarms by their next scheduled fire
func (m *Manager) Upcoming(ctx context.Context) ([]Upcoming, error) {
	alarms, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sets, err := m.store.GetAllDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list occurrence sets: %w", ErrPersistence, err)
	}

	var out []Upcoming
	for _, alarm := range alarms {
		dates, ok := sets[alarm.UID]
		if !alarm.Active || !ok {
			continue
		}
		if next, ok := dates.Next(); ok {
			out = append(out, Upcoming{Alarm: alarm, Next: next.In(m.loc)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out, nil
}

// Dates returns the stored occurrence set of uid
func (m *Manager) Dates(ctx context.Context, uid string) (*models.AlarmDates, error) {
	dates, err := m.loadDates(ctx, uid)
	if err != nil {
		return nil, err
	}
	if dates == nil {
		return nil, fmt.Errorf("%w: %s has no occurrences", ErrNotFound, uid)
	}
	return dates, nil
}

func (m *Manager) loadAlarm(ctx context.Context, uid string) (*models.Alarm, error) {
	alarm, err := m.store.GetAlarm(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load alarm %s: %w", ErrPersistence, uid, err)
	}
	return alarm, nil
}

// loadDates returns nil without error when uid has no occurrence set
func (m *Manager) loadDates(ctx context.Context, uid string) (*models.AlarmDates, error) {
	dates, err := m.store.GetDates(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load occurrences of %s: %w", ErrPersistence, uid, err)
	}
	return dates, nil
}

// register adds a timer for every occurrence, undoing all of them on failure
func (m *Manager) register(dates *models.AlarmDates) error {
	for i, id := range dates.NotificationIDs {
		payload := timer.Payload{AlarmUID: dates.AlarmUID, NotificationID: id}
		if err := m.timers.ScheduleOnce(id, dates.Dates[i], payload); err != nil {
			for _, done := range dates.NotificationIDs[:i] {
				m.timers.Cancel(done)
			}
			return fmt.Errorf("%w: register %s at %s: %w", ErrTimerService, dates.AlarmUID, dates.Dates[i].Format(time.RFC3339), err)
		}
	}
	return nil
}

// retire cancels every timer of dates and returns the ids to the pool
func (m *Manager) retire(dates *models.AlarmDates) {
	m.retireExcept(dates, nil)
}

// retireExcept is retire for the ids of dates that keep does not hold. An id
// whose timer now belongs to another alarm is left alone.
func (m *Manager) retireExcept(dates, keep *models.AlarmDates) {
	if dates == nil {
		return
	}
	held := make(map[int]bool)
	if keep != nil {
		for _, id := range keep.NotificationIDs {
			held[id] = true
		}
	}
	for _, id := range dates.NotificationIDs {
		if held[id] {
			continue
		}
		if owner, ok := m.timers.Owner(id); ok && owner != dates.AlarmUID {
			continue
		}
		m.timers.Cancel(id)
		m.ids.Release(id)
	}
}

func (m *Manager) releaseIDs(dates *models.AlarmDates) {
	for _, id := range dates.NotificationIDs {
		m.ids.Release(id)
	}
}

// silence stops uid if it is ringing and drops it from the queue
func (m *Manager) silence(uid string) {
	m.ring.drop(uid)
	if r := m.ring.releaseUID(uid); r != nil {
		if r.session != nil {
			r.session.Stop()
		}
		log.Printf("[MANAGER] Silenced ringing alarm %s", uid)
	}
}
