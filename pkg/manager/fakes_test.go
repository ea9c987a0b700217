package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/borgmon/alarm-clock/pkg/config"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/borgmon/alarm-clock/pkg/notify"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timer"
	"github.com/stretchr/testify/require"
)

// Sunday 2026-10-18 08:00 UTC
var sundayMorning = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeTimers struct {
	mu        sync.Mutex
	entries   map[int]timer.Entry
	scheduled int
	failFor   string
	handler   timer.Handler
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{entries: make(map[int]timer.Entry)}
}

func (f *fakeTimers) ScheduleOnce(id int, at time.Time, p timer.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && p.AlarmUID == f.failFor {
		return errors.New("alarm manager unavailable")
	}
	f.entries[id] = timer.Entry{At: at, Payload: p}
	f.scheduled++
	return nil
}

func (f *fakeTimers) Cancel(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	delete(f.entries, id)
	return ok
}

func (f *fakeTimers) Has(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	return ok
}

func (f *fakeTimers) Owner(id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	return e.Payload.AlarmUID, ok
}

func (f *fakeTimers) get(id int) (timer.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	return e, ok
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled
}

func (f *fakeTimers) forUID(uid string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for id, e := range f.entries {
		if e.Payload.AlarmUID == uid {
			ids = append(ids, id)
		}
	}
	return ids
}

// Fire delivers the timer registered under id, as the timer service would
func (f *fakeTimers) Fire(id int) bool {
	f.mu.Lock()
	e, ok := f.entries[id]
	delete(f.entries, id)
	h := f.handler
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(e.Payload, e.At)
	return true
}

type fakeSession struct {
	uid   string
	stops atomic.Int32
}

func (s *fakeSession) Stop() { s.stops.Add(1) }

type fakePresenter struct {
	mu       sync.Mutex
	sessions []*fakeSession
	fail     error
}

func (p *fakePresenter) Present(alarm models.Alarm) (notify.Sound, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	s := &fakeSession{uid: alarm.UID}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *fakePresenter) presented() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var uids []string
	for _, s := range p.sessions {
		uids = append(uids, s.uid)
	}
	return uids
}

func (p *fakePresenter) last() *fakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

type harness struct {
	m         *Manager
	clock     *fakeClock
	timers    *fakeTimers
	presenter *fakePresenter
	backend   *store.MemoryBackend
	store     *store.AlarmStore
	ids       *timer.Pool
	changes   atomic.Int32
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		clock:     &fakeClock{t: sundayMorning},
		timers:    newFakeTimers(),
		presenter: &fakePresenter{},
		backend:   store.NewMemoryBackend(),
		ids:       timer.NewPool(64),
	}
	h.store = store.NewAlarmStore(h.backend)

	opts := Options{
		Store:         h.store,
		Timers:        h.timers,
		IDs:           h.ids,
		Presenter:     h.presenter,
		Now:           h.clock.Now,
		Location:      time.UTC,
		RingingPolicy: config.RingingQueue,
		DismissAction: config.DismissNone,
		OnChange:      func() { h.changes.Add(1) },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.m = New(opts)
	h.timers.handler = h.m.HandleFire
	return h
}

func (h *harness) schedule(t *testing.T, alarm models.Alarm) *models.AlarmDates {
	t.Helper()
	_, err := h.m.Schedule(context.Background(), alarm)
	require.NoError(t, err)
	dates, err := h.m.Dates(context.Background(), alarm.UID)
	require.NoError(t, err)
	return dates
}

func mondaySeven(uid string) models.Alarm {
	return models.Alarm{
		UID:            uid,
		Days:           []time.Weekday{time.Monday},
		Hour:           7,
		SnoozeInterval: 5,
		Title:          "Alarm",
		Description:    "Wake up",
		Repeating:      true,
		Active:         true,
	}
}
