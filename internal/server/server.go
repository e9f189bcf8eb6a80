package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"podcast-player/internal/models"
	"podcast-player/internal/playback"
	"podcast-player/internal/preferences"
)

// minSearchQueryLength is the shortest query that triggers a feed search.
const minSearchQueryLength = 3

// FeedSource fetches and normalizes podcast feeds.
type FeedSource interface {
	Channels(ctx context.Context, feedURLs []string) []models.Channel
	Episodes(ctx context.Context, feedURLs []string) []models.Episode
	Search(ctx context.Context, query string, feedURLs []string) []models.Episode
}

// SubscriptionList provides the feed URLs the API operates on.
type SubscriptionList interface {
	Feeds() []string
	HasFeed(url string) bool
}

// ContentSource builds the mixed discover feed.
type ContentSource interface {
	Fetch(ctx context.Context) []models.ContentItem
}

// PreferenceStore holds the local user flags.
type PreferenceStore interface {
	Snapshot() preferences.Snapshot
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Toggle(key string) (bool, error)
}

// Player is the playback session driven by the /player routes.
type Player interface {
	Load(ctx context.Context, playlist []models.Episode, index int) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Toggle(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Close() error
	Minimize() error
	Snapshot() playback.Snapshot
}

// TokenValidator determines whether a supplied token is authorized.
type TokenValidator interface {
	IsValidToken(token string) bool
}

// FeedMetadata describes the static information necessary to render the RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Services bundles the components exposed over HTTP.
type Services struct {
	Feeds         FeedSource
	Subscriptions SubscriptionList
	Content       ContentSource
	Preferences   PreferenceStore
	Player        Player
}

type serverHandler struct {
	svc       Services
	validator TokenValidator
	feed      FeedMetadata
	logger    *log.Logger
}

// New creates the HTTP handler that exposes the feed, content, preference and
// player APIs plus the aggregated RSS feed.
func New(svc Services, validator TokenValidator, feed FeedMetadata, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}

	if feed.Title == "" {
		feed.Title = "Podcast Player"
	}
	if feed.Description == "" {
		feed.Description = feed.Title
	}

	h := &serverHandler{
		svc:       svc,
		validator: validator,
		feed:      feed,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/channels", h.authorized(h.handleChannels))
	mux.HandleFunc("/episodes", h.authorized(h.handleEpisodes))
	mux.HandleFunc("/search", h.authorized(h.handleSearch))
	mux.HandleFunc("/content", h.authorized(h.handleContent))
	mux.HandleFunc("/feed", h.authorized(h.handleFeed))
	mux.HandleFunc("/feed.xml", h.authorized(h.handleFeed))
	mux.HandleFunc("/rss", h.authorized(h.handleFeed))
	mux.HandleFunc("/preferences", h.authorized(h.handlePreferences))
	mux.HandleFunc("/preferences/{key}", h.authorized(h.handlePreference))
	mux.HandleFunc("/preferences/{key}/toggle", h.authorized(h.handleTogglePreference))
	mux.HandleFunc("/player", h.authorized(h.handlePlayer))
	mux.HandleFunc("/player/load", h.authorized(h.handlePlayerLoad))
	mux.HandleFunc("/player/seek", h.authorized(h.handlePlayerSeek))
	mux.HandleFunc("/player/{action}", h.authorized(h.handlePlayerAction))

	return logRequests(mux, logger)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *serverHandler) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	channels := h.svc.Feeds.Channels(r.Context(), h.svc.Subscriptions.Feeds())
	if channels == nil {
		channels = []models.Channel{}
	}
	h.writeJSON(w, http.StatusOK, channels)
}

func (h *serverHandler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Feeds.Episodes(r.Context(), h.svc.Subscriptions.Feeds()))
}

func (h *serverHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(query) < minSearchQueryLength {
		h.writeJSON(w, http.StatusOK, []models.Episode{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Feeds.Search(r.Context(), query, h.svc.Subscriptions.Feeds()))
}

func (h *serverHandler) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items := h.svc.Content.Fetch(r.Context())
	if items == nil {
		items = []models.ContentItem{}
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *serverHandler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, h.svc.Preferences.Snapshot())
	case http.MethodPut:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode preferences: %w", err))
			return
		}
		keys := make([]string, 0, len(body))
		values := make(map[string]string, len(body))
		for key, raw := range body {
			value, err := preferenceValue(raw)
			if err == nil {
				err = preferences.ValidateKey(key)
			}
			if err != nil {
				h.writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", key, err))
				return
			}
			keys = append(keys, key)
			values[key] = value
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := h.svc.Preferences.Set(key, values[key]); err != nil {
				h.writePreferenceError(w, err)
				return
			}
		}
		h.writeJSON(w, http.StatusOK, h.svc.Preferences.Snapshot())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type preferenceEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *serverHandler) handlePreference(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	switch r.Method {
	case http.MethodGet:
		value, ok := h.svc.Preferences.Get(key)
		if !ok {
			h.writeError(w, http.StatusNotFound, fmt.Errorf("preference not set: %s", key))
			return
		}
		h.writeJSON(w, http.StatusOK, preferenceEntry{Key: key, Value: value})
	case http.MethodDelete:
		if err := h.svc.Preferences.Delete(key); err != nil {
			h.writePreferenceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, h.svc.Preferences.Snapshot())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *serverHandler) handleTogglePreference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.svc.Preferences.Toggle(r.PathValue("key")); err != nil {
		h.writePreferenceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.Preferences.Snapshot())
}

func (h *serverHandler) writePreferenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, preferences.ErrInvalidKey) {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.logger.Printf("failed to store preference: %v", err)
	h.writeError(w, http.StatusInternalServerError, err)
}

func preferenceValue(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", errors.New("value must be a string, boolean or number")
	}
}

func (h *serverHandler) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.requireToken(w, r); !ok {
			return
		}
		next(w, r)
	}
}

func (h *serverHandler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.validator == nil {
		return "", true
	}

	token := extractToken(r)
	if token == "" || !h.validator.IsValidToken(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return "", false
	}
	return token, true
}

func (h *serverHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Printf("failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func (h *serverHandler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorBody{Error: err.Error()})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, duration)
	})
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	if header := strings.TrimSpace(r.Header.Get("X-Podcast-Token")); header != "" {
		return header
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	return ""
}
