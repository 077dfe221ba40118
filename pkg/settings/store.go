// Package settings persists the automation settings as a flat JSON
// key/value file and hands out typed snapshots of it.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Store manages settings persistence
type Store struct {
	// Paths
	configDir    string
	settingsPath string

	mu     sync.RWMutex
	values map[string]json.RawMessage

	// saveMu orders file writes so the last save carries the latest values
	saveMu sync.Mutex

	// Logger function (optional)
	logFunc func(format string, args ...interface{})
}

// Config for creating a new Store
type Config struct {
	ConfigDir string
	LogFunc   func(format string, args ...interface{})
}

// DefaultConfigDir is <user config dir>/Aide.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "Aide")
}

// New creates a Store and loads the persisted file if there is one
func New(cfg Config) (*Store, error) {
	configDir := cfg.ConfigDir
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	s := &Store{
		configDir:    configDir,
		settingsPath: filepath.Join(configDir, "settings.json"),
		values:       make(map[string]json.RawMessage),
		logFunc:      cfg.LogFunc,
	}

	if err := s.Reload(); err != nil {
		s.log("Ignoring unreadable settings %s: %v", s.settingsPath, err)
	}
	return s, nil
}

// log writes a log message if logFunc is set
func (s *Store) log(format string, args ...interface{}) {
	if s.logFunc != nil {
		s.logFunc(format, args...)
	}
}

// ========================================
// Raw access
// ========================================

// Get returns the stored JSON value of key
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) result(key string) gjson.Result {
	raw, ok := s.Get(key)
	if !ok {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

// GetBool reads key leniently ("true", 1 and true all count)
func (s *Store) GetBool(key string, def bool) bool {
	r := s.result(key)
	if !r.Exists() {
		return def
	}
	return r.Bool()
}

func (s *Store) GetInt(key string, def int64) int64 {
	r := s.result(key)
	if !r.Exists() {
		return def
	}
	return r.Int()
}

func (s *Store) GetString(key, def string) string {
	r := s.result(key)
	if !r.Exists() {
		return def
	}
	return r.String()
}

// GetList accepts a JSON array or a comma separated string
func (s *Store) GetList(key string) []string {
	r := s.result(key)
	var out []string
	add := func(v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	switch {
	case r.IsArray():
		for _, v := range r.Array() {
			add(v.String())
		}
	case r.Exists():
		for _, v := range strings.Split(r.String(), ",") {
			add(v)
		}
	}
	return out
}

// Set stores value under key and persists the file
func (s *Store) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = data
	s.mu.Unlock()
	return s.Save()
}

// SetText stores a value typed on a command line: valid JSON is kept as
// is, anything else becomes a string
func (s *Store) SetText(key, text string) error {
	if gjson.Valid(text) {
		s.mu.Lock()
		s.values[key] = json.RawMessage(text)
		s.mu.Unlock()
		return s.Save()
	}
	return s.Set(key, text)
}

// Delete removes key and persists the file
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	_, ok := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Save()
}

// Keys returns every stored key, sorted
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ========================================
// Persistence
// ========================================

// Save writes the settings file atomically
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.configDir, "settings-*.tmp")
	if err != nil {
		s.log("Error saving settings to %s: %v", s.settingsPath, err)
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.log("Error saving settings to %s: %v", s.settingsPath, err)
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.settingsPath)
}

// Reload replaces the in-memory values with the file contents. A missing
// file leaves an empty store.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.settingsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	values := make(map[string]json.RawMessage)
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.settingsPath, err)
		}
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// ========================================
// Path Accessors
// ========================================

// ConfigDir returns the configuration directory path
func (s *Store) ConfigDir() string {
	return s.configDir
}

// SettingsPath returns the settings file path
func (s *Store) SettingsPath() string {
	return s.settingsPath
}

// ScriptPath returns the recognizer script path
func (s *Store) ScriptPath() string {
	return filepath.Join(s.configDir, ScriptFile)
}

// AuditPath returns the audit database path
func (s *Store) AuditPath() string {
	return filepath.Join(s.configDir, "audit.db")
}
