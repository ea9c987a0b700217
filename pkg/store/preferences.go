package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"fyne.io/fyne/v2"
)

// Preferences has no way to enumerate keys, so the backend tracks them here
const indexKey = "alarm_clock_keys"

const keyPrefix = "alarm_clock."

// PreferencesBackend stores values in the fyne app preferences, which fyne
// persists per app id
type PreferencesBackend struct {
	mu    sync.Mutex
	prefs fyne.Preferences
}

func NewPreferencesBackend(app fyne.App) *PreferencesBackend {
	return &PreferencesBackend{prefs: app.Preferences()}
}

func (p *PreferencesBackend) Put(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prefs.SetString(keyPrefix+key, string(value))
	keys := p.keys()
	if _, ok := keys[key]; !ok {
		keys[key] = struct{}{}
		return p.saveKeys(keys)
	}
	return nil
}

func (p *PreferencesBackend) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.keys()[key]; !ok {
		return nil, ErrNotFound
	}
	return []byte(p.prefs.String(keyPrefix + key)), nil
}

func (p *PreferencesBackend) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prefs.RemoveValue(keyPrefix + key)
	keys := p.keys()
	if _, ok := keys[key]; ok {
		delete(keys, key)
		return p.saveKeys(keys)
	}
	return nil
}

func (p *PreferencesBackend) List(_ context.Context) (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string][]byte)
	for key := range p.keys() {
		out[key] = []byte(p.prefs.String(keyPrefix + key))
	}
	return out, nil
}

func (p *PreferencesBackend) Close() error { return nil }

func (p *PreferencesBackend) keys() map[string]struct{} {
	keys := make(map[string]struct{})
	raw := p.prefs.String(indexKey)
	if raw == "" {
		return keys
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return keys
	}
	for _, k := range list {
		keys[k] = struct{}{}
	}
	return keys
}

func (p *PreferencesBackend) saveKeys(keys map[string]struct{}) error {
	list := make([]string, 0, len(keys))
	for k := range keys {
		list = append(list, k)
	}
	sort.Strings(list)

	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	p.prefs.SetString(indexKey, string(data))
	return nil
}
