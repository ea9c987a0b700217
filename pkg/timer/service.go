package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Payload identifies the occurrence a timer belongs to
type Payload struct {
	AlarmUID       string
	NotificationID int
}

// Entry is a registered one-shot timer
type Entry struct {
	At      time.Time
	Payload Payload
}

// Handler receives a due timer. at is the time it was registered for.
type Handler func(p Payload, at time.Time)

type entry struct {
	Entry
	gen   uint64
	timer *time.Timer
}

// Service keeps one-shot timers keyed by notification id.
//
// Each timer runs on time.AfterFunc. A periodic sweep driven by cron also
// fires anything whose wall-clock time has passed, which covers timers
// delayed by system sleep.
type Service struct {
	mu      sync.Mutex
	entries map[int]*entry
	gen     uint64
	handler Handler

	now   func() time.Time
	sweep string
}

type Option func(*Service)

// WithClock overrides the time source used for delays and sweeps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSweep sets the cron spec of the wall-clock sweep. Empty disables it.
func WithSweep(spec string) Option {
	return func(s *Service) { s.sweep = spec }
}

func NewService(handler Handler, opts ...Option) *Service {
	s := &Service{
		entries: make(map[int]*entry),
		handler: handler,
		now:     time.Now,
		sweep:   "@every 15s",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler replaces the function due timers are delivered to
func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// ScheduleOnce registers a timer for id at the given time, replacing any
// timer already registered under id. A time in the past fires immediately.
func (s *Service) ScheduleOnce(id int, at time.Time, payload Payload) error {
	if id <= 0 {
		return fmt.Errorf("invalid notification id %d", id)
	}
	if payload.AlarmUID == "" {
		return errors.New("timer payload has no alarm uid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		old.timer.Stop()
	}

	s.gen++
	gen := s.gen
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	e := &entry{Entry: Entry{At: at, Payload: payload}, gen: gen}
	e.timer = time.AfterFunc(delay, func() { s.fire(id, gen) })
	s.entries[id] = e
	return nil
}

// Cancel removes the timer for id. It reports whether one was registered.
func (s *Service) Cancel(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, id)
	return true
}

// Has reports whether a timer is registered for id
func (s *Service) Has(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Owner returns the alarm uid of the timer registered for id
func (s *Service) Owner(id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return e.Payload.AlarmUID, true
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Pending returns the registered timers ordered by time
func (s *Service) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Entry)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Sweep fires every timer due at or before now, oldest first
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	var due []Entry
	for id, e := range s.entries {
		if !e.At.After(now) {
			e.timer.Stop()
			delete(s.entries, id)
			due = append(due, e.Entry)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })
	for _, e := range due {
		log.Printf("[TIMER] Sweep firing %s (notification %d, due %s)",
			e.Payload.AlarmUID, e.Payload.NotificationID, e.At.Format(time.RFC3339))
		s.dispatch(e)
	}
	return len(due)
}

// Run drives the sweep until ctx is done, then stops all timers
func (s *Service) Run(ctx context.Context) error {
	var c *cron.Cron
	if s.sweep != "" {
		c = cron.New()
		if _, err := c.AddFunc(s.sweep, func() { s.Sweep(s.now()) }); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", s.sweep, err)
		}
		c.Start()
		log.Printf("[TIMER] Sweep running on %q", s.sweep)
	}

	<-ctx.Done()

	if c != nil {
		<-c.Stop().Done()
	}
	s.stopAll()
	return nil
}

func (s *Service) fire(id int, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.mu.Unlock()

	s.dispatch(e.Entry)
}

func (s *Service) dispatch(e Entry) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	h(e.Payload, e.At)
}

func (s *Service) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.timer.Stop()
	}
}
