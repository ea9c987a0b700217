package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/borgmon/alarm-clock/pkg/api"
	"github.com/borgmon/alarm-clock/pkg/audio"
	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/config"
	"github.com/borgmon/alarm-clock/pkg/manager"
	"github.com/borgmon/alarm-clock/pkg/metrics"
	"github.com/borgmon/alarm-clock/pkg/notify"
	"github.com/borgmon/alarm-clock/pkg/platform"
	"github.com/borgmon/alarm-clock/pkg/store"
	"github.com/borgmon/alarm-clock/pkg/timer"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const appID = "io.github.borgmon.alarm-clock"

type AlarmClock struct {
	app        fyne.App
	config     *config.Config
	configPath string
	location   *time.Location

	store   *store.AlarmStore
	timers  *timer.Service
	engine  *manager.Manager
	module  *api.Module
	metrics *metrics.Registry
	hotkeys *ringHotkeys

	trayReady atomic.Bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newAlarmClock(cfg *config.Config, configPath string) *AlarmClock {
	ac := &AlarmClock{
		app:        app.NewWithID(appID),
		config:     cfg,
		configPath: configPath,
	}
	ac.hotkeys = newRingHotkeys(ac)
	return ac
}

func (ac *AlarmClock) initialize(ctx context.Context, boot bool) error {
	loc, err := ac.config.Location()
	if err != nil {
		log.Printf("Warning: %v, using local time", err)
	}
	ac.location = loc

	// Sync autostart state with config on startup
	if err := setupAutostart(ac.config.AutoStart, ac.configPath); err != nil {
		log.Printf("Warning: failed to setup autostart: %v", err)
	}

	backend, err := openBackend(ac.config, ac.app)
	if err != nil {
		return err
	}
	ac.store = store.NewAlarmStore(backend)

	ac.timers = timer.NewService(nil, timer.WithSweep(ac.config.Sweep))
	ac.metrics = metrics.New(
		func() float64 { return float64(ac.timers.Len()) },
		ac.countAlarms,
	)

	ac.engine = manager.New(manager.Options{
		Store:         ac.store,
		Timers:        ac.timers,
		IDs:           timer.NewPool(ac.config.MaxTimers),
		Presenter:     notify.NewPresenter(ac.app, ac.loadSound(), nil),
		Metrics:       ac.metrics,
		Location:      loc,
		RingingPolicy: ac.config.RingingPolicy,
		DismissAction: ac.config.DismissAction,
		OnChange:      ac.onChange,
	})
	ac.timers.SetHandler(ac.engine.HandleFire)

	ac.module = api.NewModule(ac.engine, api.ModuleOptions{
		Location:      loc,
		SnoozeDefault: ac.config.SnoozeDefault,
	})

	// timers live in this process, so every start rebuilds them from storage
	if boot {
		log.Printf("[BOOT] Started at login, recovering alarms")
	}
	if err := ac.engine.Reschedule(ctx); err != nil {
		log.Printf("[BOOT] Warning: some alarms could not be rescheduled: %v", err)
	}

	return nil
}

func openBackend(cfg *config.Config, a fyne.App) (store.Backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Printf("[STORE] Using in-memory storage, alarms will not survive a restart")
		return store.NewMemoryBackend(), nil
	case config.StoragePreferences:
		return store.NewPreferencesBackend(a), nil
	default:
		backend, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open alarm database: %w", err)
		}
		log.Printf("[STORE] Using %s", cfg.DatabasePath)
		return backend, nil
	}
}

func (ac *AlarmClock) loadSound() []byte {
	if ac.config.SoundFile == "" {
		return audio.DefaultSound()
	}
	wav, err := audio.LoadSound(ac.config.SoundFile)
	if err != nil {
		log.Printf("[AUDIO] Warning: %v, using the built-in beep", err)
		return audio.DefaultSound()
	}
	return wav
}

func (ac *AlarmClock) countAlarms() float64 {
	alarms, err := ac.engine.GetAll(context.Background())
	if err != nil {
		return 0
	}
	return float64(len(alarms))
}

func (ac *AlarmClock) onChange() {
	_, ringing := ac.engine.ActiveAlarm()
	ac.hotkeys.sync(ringing)
	ac.updateSystemTrayMenu()
}

// run serves the command API and the timer sweep in the background and
// blocks in the fyne event loop until quit
func (ac *AlarmClock) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ac.timers.Run(gctx) })
	g.Go(func() error { return ac.runHousekeeping(gctx) })

	if ac.config.Listen != "" {
		gatherer := ac.metrics.Gatherer
		if ac.config.MetricsListen != "" {
			gatherer = nil
		}
		importer := &calendar.Importer{Location: ac.location, DefaultSnooze: ac.config.SnoozeDefault}
		server := api.NewServer(ac.module, importer, gatherer)
		g.Go(func() error { return server.Run(gctx, ac.config.Listen) })
	}
	if ac.config.MetricsListen != "" {
		g.Go(func() error { return api.ServeMetrics(gctx, ac.config.MetricsListen, ac.metrics.Gatherer) })
	}

	// a signal or a failed background service takes the app down
	stopped := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			log.Printf("Shutting down")
			fyne.Do(ac.app.Quit)
		case <-stopped:
		}
	}()

	ac.app.Lifecycle().SetOnStarted(func() {
		platform.SetActivationPolicy()
		ac.setupSystemTray()
	})
	ac.app.Run()

	close(stopped)
	cancel()
	ac.hotkeys.sync(false)
	err := g.Wait()
	if cerr := ac.store.Close(); cerr != nil {
		log.Printf("[STORE] Warning: failed to close storage: %v", cerr)
	}
	return err
}

func (ac *AlarmClock) runHousekeeping(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(ac.config.Housekeeping, func() {
		if _, err := ac.engine.Housekeep(ctx); err != nil {
			log.Printf("[MANAGER] Warning: housekeeping failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid housekeeping schedule %q: %w", ac.config.Housekeeping, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (ac *AlarmClock) quit() {
	ac.app.Quit()
}
