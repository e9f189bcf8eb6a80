package auth

import (
	"crypto/subtle"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"podcast-player/internal/watchfile"
)

// TokenStore holds the API tokens clients may present. Tokens live one per
// line in a file; blank lines and lines starting with # are ignored. The file
// is reloaded when it changes.
type TokenStore struct {
	file    string
	logger  *log.Logger
	watcher *watchfile.Watcher

	mu     sync.RWMutex
	tokens []string
}

// NewTokenStore loads filePath and starts watching it for changes.
func NewTokenStore(filePath string, debounce time.Duration, logger *log.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &TokenStore{
		file:   filepath.Clean(filePath),
		logger: logger,
	}

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

// Close stops watching the token file.
func (s *TokenStore) Close() error {
	return s.watcher.Close()
}

// IsValidToken reports whether the provided token is authorized.
func (s *TokenStore) IsValidToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func (s *TokenStore) refresh() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.tokens = nil
			s.mu.Unlock()
			s.logger.Printf("token file %s missing; no tokens loaded", s.file)
			return nil
		}
		return err
	}

	tokens := parseTokens(string(data))

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.logger.Printf("loaded %d api tokens", len(tokens))
	return nil
}

func parseTokens(content string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, line := range strings.Split(content, "\n") {
		token := strings.TrimSpace(line)
		if token == "" || strings.HasPrefix(token, "#") {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}
