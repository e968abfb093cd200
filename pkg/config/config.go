// Package config loads the accounts file and watches it for changes.
// Credentials may reference environment variables with ${VAR} syntax so
// secrets stay out of the file itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/quotalab/quotad/pkg/provider"
)

// AccountEntry is one account as written in the accounts file. Enabled
// defaults to true when omitted.
type AccountEntry struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Credential string `json:"credential"`
	Enabled    *bool  `json:"enabled,omitempty"`
}

type accountsFile struct {
	Accounts []AccountEntry `json:"accounts"`
}

// Load reads and validates the accounts file at path. ${VAR} references
// in credentials are expanded from the environment at load time; an
// unset variable expands to the empty string and surfaces later as a
// credential-missing fetch error rather than failing the whole load.
func Load(path string) ([]provider.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates accounts file content.
func Parse(data []byte) ([]provider.Account, error) {
	var file accountsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	known := make(map[provider.Kind]bool, len(provider.Kinds()))
	for _, kind := range provider.Kinds() {
		known[kind] = true
	}

	seen := make(map[string]bool, len(file.Accounts))
	accounts := make([]provider.Account, 0, len(file.Accounts))
	for i, entry := range file.Accounts {
		if entry.ID == "" {
			return nil, fmt.Errorf("account %d: missing id", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("account %q: duplicate id", entry.ID)
		}
		seen[entry.ID] = true

		kind := provider.Kind(entry.Provider)
		if !known[kind] {
			return nil, fmt.Errorf("account %q: unknown provider %q", entry.ID, entry.Provider)
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		accounts = append(accounts, provider.Account{
			ID:         entry.ID,
			Kind:       kind,
			Credential: os.ExpandEnv(entry.Credential),
			Enabled:    enabled,
		})
	}
	return accounts, nil
}

// WriteDefault creates an empty accounts file at path, including parent
// directories. Existing files are left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(accountsFile{Accounts: []AccountEntry{}}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Manager holds the current account list and reloads it when the file
// changes on disk. A load error on reload keeps the previous list.
type Manager struct {
	mu       sync.RWMutex
	path     string
	accounts []provider.Account
	watcher  *fsnotify.Watcher
	onReload func([]provider.Account)
	logf     func(format string, args ...any)
}

// NewManager loads path and starts watching it. onReload, when non-nil,
// is called with the fresh account list after every successful reload.
func NewManager(path string, logf func(format string, args ...any), onReload func([]provider.Account)) (*Manager, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	accounts, err := Load(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		path:     path,
		accounts: accounts,
		onReload: onReload,
		logf:     logf,
	}
	if err := m.startWatcher(); err != nil {
		logf("config watch unavailable: %v", err)
	}
	return m, nil
}

// Accounts returns a copy of the current account list.
func (m *Manager) Accounts() []provider.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]provider.Account, len(m.accounts))
	copy(out, m.accounts)
	return out
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(m.path) {
					continue
				}
				// Editors replace files via rename+create as often as
				// they write in place.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					m.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logf("config watch error: %v", err)
			}
		}
	}()

	// Watch the directory so the file can be atomically replaced
	// without losing the watch.
	return watcher.Add(filepath.Dir(m.path))
}

func (m *Manager) reload() {
	accounts, err := Load(m.path)
	if err != nil {
		m.logf("accounts reload failed, keeping previous config: %v", err)
		return
	}

	m.mu.Lock()
	m.accounts = accounts
	m.mu.Unlock()
	m.logf("accounts reloaded: %d account(s)", len(accounts))

	if m.onReload != nil {
		m.onReload(accounts)
	}
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
