// Package prefs persists the user-flippable feature toggles as a small JSON
// file under the user config directory. Toggles take effect on the next
// relevant operation; nothing is re-run retroactively when one flips.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const prefsFile = "prefs.json"

type settings struct {
	SyncEnabled       bool `json:"sync_enabled"`
	AutoCategorize    bool `json:"auto_categorize"`
	ExcludeFromWeekly bool `json:"exclude_from_weekly"`
}

// Prefs is a concurrency-safe view over the settings file. It satisfies the
// ingest pipeline's Toggles interface.
type Prefs struct {
	mu   sync.RWMutex
	path string
	s    settings
}

// Open loads the settings file under dir, creating defaults when absent.
// New installs start with auto-categorization on and sync off until the user
// signs in.
func Open(dir string) (*Prefs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	p := &Prefs{
		path: filepath.Join(dir, prefsFile),
		s:    settings{AutoCategorize: true},
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &p.s); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenDefault loads settings from the user config directory.
func OpenDefault() (*Prefs, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(base, "pesaledger"))
}

func (p *Prefs) SyncEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.SyncEnabled
}

func (p *Prefs) AutoCategorize() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.AutoCategorize
}

func (p *Prefs) ExcludeFromWeekly() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.ExcludeFromWeekly
}

func (p *Prefs) SetSyncEnabled(v bool) error {
	return p.update(func(s *settings) { s.SyncEnabled = v })
}

func (p *Prefs) SetAutoCategorize(v bool) error {
	return p.update(func(s *settings) { s.AutoCategorize = v })
}

func (p *Prefs) SetExcludeFromWeekly(v bool) error {
	return p.update(func(s *settings) { s.ExcludeFromWeekly = v })
}

func (p *Prefs) update(apply func(*settings)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	apply(&p.s)
	data, err := json.MarshalIndent(p.s, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
