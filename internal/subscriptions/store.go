package subscriptions

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"podcast-player/internal/watchfile"
)

// List is the on-disk subscription document.
//
//	feeds:
//	  - https://feeds.example.com/show.xml
//	videos:
//	  - 8vobf7pjLlA
//	video_queries:
//	  - lofi jazz
type List struct {
	Feeds        []string `yaml:"feeds"`
	Videos       []string `yaml:"videos"`
	VideoQueries []string `yaml:"video_queries"`
}

// Store keeps the subscribed feed URLs and video IDs in memory and reloads
// them when the backing file changes. A missing file means no subscriptions.
type Store struct {
	file    string
	logger  *log.Logger
	watcher *watchfile.Watcher

	mu   sync.RWMutex
	list List
}

// NewStore loads path and watches it for changes.
func NewStore(path string, debounce time.Duration, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &Store{file: filepath.Clean(path), logger: logger}
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

// Close stops watching the subscription file.
func (s *Store) Close() error {
	return s.watcher.Close()
}

// Feeds returns a copy of the subscribed RSS URLs in file order.
func (s *Store) Feeds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.list.Feeds...)
}

// Videos returns a copy of the subscribed YouTube video IDs in file order.
func (s *Store) Videos() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.list.Videos...)
}

// VideoQueries returns a copy of the YouTube search queries whose results
// join the discover list.
func (s *Store) VideoQueries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.list.VideoQueries...)
}

// HasFeed reports whether url is one of the subscribed feeds.
func (s *Store) HasFeed(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, feed := range s.list.Feeds {
		if feed == url {
			return true
		}
	}
	return false
}

func (s *Store) refresh() error {
	list, err := Load(s.file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.list = list
	s.mu.Unlock()

	s.logger.Printf("subscriptions loaded: %d feeds, %d videos, %d video queries", len(list.Feeds), len(list.Videos), len(list.VideoQueries))
	return nil
}

// Load reads and cleans a subscription file. Blank entries are dropped and
// duplicates collapse to their first occurrence.
func Load(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return List{}, nil
		}
		return List{}, err
	}

	var list List
	if err := yaml.Unmarshal(data, &list); err != nil {
		return List{}, fmt.Errorf("parse subscriptions %s: %w", path, err)
	}

	return List{
		Feeds:        uniqueTrimmed(list.Feeds),
		Videos:       uniqueTrimmed(list.Videos),
		VideoQueries: uniqueTrimmed(list.VideoQueries),
	}, nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
