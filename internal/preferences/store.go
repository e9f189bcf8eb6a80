package preferences

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"podcast-player/internal/watchfile"
)

// Well-known flag keys.
const (
	KeyDarkMode      = "dark_mode"
	KeyNotifications = "notifications"
)

// ErrInvalidKey is returned for empty or malformed keys.
var ErrInvalidKey = errors.New("invalid preference key")

// Snapshot is a point-in-time copy of the stored flags.
type Snapshot struct {
	DarkMode      bool              `json:"dark_mode"`
	Notifications bool              `json:"notifications"`
	Values        map[string]string `json:"values"`
}

// Store is a small key/value store persisted as YAML. Values are strings, as
// on device storage; the two well-known flags are interpreted as booleans
// with dark mode defaulting off and notifications defaulting on.
type Store struct {
	file    string
	logger  *log.Logger
	watcher *watchfile.Watcher

	writeMu sync.Mutex
	mu      sync.RWMutex
	values  map[string]string
}

// NewStore loads path, creating nothing until the first write, and watches it
// for external edits.
func NewStore(path string, debounce time.Duration, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &Store{file: filepath.Clean(path), logger: logger, values: map[string]string{}}
	if err := s.refresh(); err != nil {
		return nil, err
	}

	watcher, err := watchfile.New(s.file, debounce, s.refresh, logger)
	if err != nil {
		return nil, err
	}
	s.watcher = watcher
	return s, nil
}

// Close stops watching the preferences file.
func (s *Store) Close() error {
	return s.watcher.Close()
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Snapshot returns all values plus the interpreted well-known flags.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Snapshot{
		DarkMode:      values[KeyDarkMode] == "true",
		Notifications: values[KeyNotifications] != "false",
		Values:        values,
	}
}

// Set stores value under key and persists the store.
func (s *Store) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	return s.persist()
}

// Delete removes key and persists the store.
func (s *Store) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()

	return s.persist()
}

// Toggle flips the boolean flag key and returns its new value. Unset flags
// start from their default.
func (s *Store) Toggle(key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := !flagValue(key, s.values[key])
	s.values[key] = strconv.FormatBool(next)
	s.mu.Unlock()

	return next, s.persist()
}

func flagValue(key, raw string) bool {
	if key == KeyNotifications {
		return raw != "false"
	}
	return raw == "true"
}

// ValidateKey reports ErrInvalidKey for keys the store cannot hold.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "/\n") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (s *Store) persist() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.values)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.file), ".preferences-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.file)
}

func (s *Store) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.values = map[string]string{}
			s.mu.Unlock()
			return nil
		}
		return err
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse preferences %s: %w", s.file, err)
	}
	if values == nil {
		values = map[string]string{}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()

	s.logger.Printf("preferences loaded with %d keys", len(values))
	return nil
}
