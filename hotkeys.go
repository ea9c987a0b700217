package main

import (
	"context"
	"log"
	"sync"

	"golang.design/x/hotkey"
)

// ringHotkeys holds the global Stop and Snooze shortcuts. They are only
// registered while an alarm rings so they never shadow other apps' bindings.
type ringHotkeys struct {
	ac *AlarmClock

	mu     sync.Mutex
	stop   *hotkey.Hotkey
	snooze *hotkey.Hotkey
	done   chan struct{}
}

func newRingHotkeys(ac *AlarmClock) *ringHotkeys {
	return &ringHotkeys{ac: ac}
}

// sync registers the shortcuts when ringing and removes them otherwise
func (h *ringHotkeys) sync(ringing bool) {
	if !h.ac.config.Hotkeys {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	registered := h.done != nil
	switch {
	case ringing && !registered:
		h.register()
	case !ringing && registered:
		h.unregister()
	}
}

// register binds Ctrl+Shift+S to stop and Ctrl+Shift+Z to snooze. Caller
// holds h.mu.
func (h *ringHotkeys) register() {
	stop := hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeyS)
	if err := stop.Register(); err != nil {
		log.Printf("Failed to register stop hotkey: %v", err)
		return
	}
	snooze := hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeyZ)
	if err := snooze.Register(); err != nil {
		log.Printf("Failed to register snooze hotkey: %v", err)
		stop.Unregister()
		return
	}

	h.stop, h.snooze = stop, snooze
	h.done = make(chan struct{})
	log.Println("Ringing hotkeys registered (Ctrl+Shift+S stop, Ctrl+Shift+Z snooze)")

	go h.listen(stop, snooze, h.done)
}

func (h *ringHotkeys) listen(stop, snooze *hotkey.Hotkey, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-stop.Keydown():
			if err := h.ac.engine.Stop(context.Background()); err != nil {
				log.Printf("Warning: stop hotkey: %v", err)
			}
		case <-snooze.Keydown():
			if err := h.ac.engine.Snooze(context.Background()); err != nil {
				log.Printf("Warning: snooze hotkey: %v", err)
			}
		}
	}
}

// unregister removes both shortcuts. Caller holds h.mu.
func (h *ringHotkeys) unregister() {
	close(h.done)
	h.done = nil
	if err := h.stop.Unregister(); err != nil {
		log.Printf("Failed to unregister stop hotkey: %v", err)
	}
	if err := h.snooze.Unregister(); err != nil {
		log.Printf("Failed to unregister snooze hotkey: %v", err)
	}
	h.stop, h.snooze = nil, nil
	log.Println("Ringing hotkeys unregistered")
}
