package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/manager"
	"github.com/borgmon/alarm-clock/pkg/models"
)

// Module is the command surface clients drive. It speaks AlarmRecord and
// delegates to the engine.
type Module struct {
	engine        *manager.Manager
	now           func() time.Time
	loc           *time.Location
	snoozeDefault int
}

type ModuleOptions struct {
	// Now defaults to time.Now
	Now func() time.Time
	// Location is used for calendar export, default time.Local
	Location      *time.Location
	SnoozeDefault int
}

func NewModule(engine *manager.Manager, opts ModuleOptions) *Module {
	mod := &Module{
		engine:        engine,
		now:           opts.Now,
		loc:           opts.Location,
		snoozeDefault: opts.SnoozeDefault,
	}
	if mod.now == nil {
		mod.now = time.Now
	}
	if mod.loc == nil {
		mod.loc = time.Local
	}
	return mod
}

// NewRecord returns a record prefilled with defaults
func (mod *Module) NewRecord() AlarmRecord {
	return NewRecord(mod.now(), mod.snoozeDefault)
}

// GetState returns the uid of the ringing alarm
func (mod *Module) GetState() (string, bool) {
	return mod.engine.ActiveAlarm()
}

func (mod *Module) Set(ctx context.Context, rec AlarmRecord) (AlarmRecord, error) {
	alarm, err := rec.ToAlarm()
	if err != nil {
		return AlarmRecord{}, err
	}
	saved, err := mod.engine.Schedule(ctx, alarm)
	if err != nil {
		return AlarmRecord{}, err
	}
	return FromAlarm(saved), nil
}

func (mod *Module) Update(ctx context.Context, rec AlarmRecord) error {
	alarm, err := rec.ToAlarm()
	if err != nil {
		return err
	}
	return mod.engine.Update(ctx, alarm)
}

func (mod *Module) Remove(ctx context.Context, uid string) error {
	return mod.engine.Remove(ctx, uid)
}

func (mod *Module) RemoveAll(ctx context.Context) error {
	return mod.engine.RemoveAll(ctx)
}

func (mod *Module) Enable(ctx context.Context, uid string) error {
	return mod.engine.Enable(ctx, uid)
}

func (mod *Module) Disable(ctx context.Context, uid string) error {
	return mod.engine.Disable(ctx, uid)
}

func (mod *Module) Stop(ctx context.Context) error {
	return mod.engine.Stop(ctx)
}

func (mod *Module) Snooze(ctx context.Context) error {
	return mod.engine.Snooze(ctx)
}

func (mod *Module) Get(ctx context.Context, uid string) (AlarmRecord, error) {
	alarm, err := mod.engine.Get(ctx, uid)
	if err != nil {
		return AlarmRecord{}, err
	}
	return FromAlarm(alarm), nil
}

func (mod *Module) GetAll(ctx context.Context) ([]AlarmRecord, error) {
	alarms, err := mod.engine.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return fromAlarms(alarms), nil
}

// Dismiss applies the configured dismiss action to uid's notification
func (mod *Module) Dismiss(ctx context.Context, uid string) error {
	return mod.engine.Dismiss(ctx, uid)
}

// Ring starts uid ringing right away
func (mod *Module) Ring(ctx context.Context, uid string) error {
	return mod.engine.Start(ctx, uid)
}

// State is a snapshot of what rings, what waits and what comes next
type State struct {
	Ringing  *string        `json:"ringing"`
	Queued   []string       `json:"queued"`
	Upcoming []UpcomingFire `json:"upcoming"`
}

type UpcomingFire struct {
	UID   string    `json:"uid"`
	Title string    `json:"title"`
	Next  time.Time `json:"next"`
}

func (mod *Module) State(ctx context.Context) (State, error) {
	state := State{Queued: mod.engine.Queued(), Upcoming: []UpcomingFire{}}
	if uid, ok := mod.engine.ActiveAlarm(); ok {
		state.Ringing = &uid
	}
	if state.Queued == nil {
		state.Queued = []string{}
	}

	upcoming, err := mod.engine.Upcoming(ctx)
	if err != nil {
		return State{}, err
	}
	for _, u := range upcoming {
		state.Upcoming = append(state.Upcoming, UpcomingFire{UID: u.Alarm.UID, Title: u.Alarm.Title, Next: u.Next})
	}
	return state, nil
}

// Export writes every alarm as an iCalendar document
func (mod *Module) Export(ctx context.Context, w io.Writer) error {
	alarms, err := mod.engine.GetAll(ctx)
	if err != nil {
		return err
	}
	return calendar.Export(w, alarms, mod.now(), mod.loc)
}

// Import schedules alarms one by one. Failures do not stop the rest; the
// number scheduled is returned with every failure joined.
func (mod *Module) Import(ctx context.Context, alarms []models.Alarm) (int, error) {
	var errs []error
	n := 0
	for _, alarm := range alarms {
		if _, err := mod.engine.Schedule(ctx, alarm); err != nil {
			log.Printf("[API] Warning: failed to import %s: %v", alarm.UID, err)
			errs = append(errs, fmt.Errorf("import %s: %w", alarm.UID, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
