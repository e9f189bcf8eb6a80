package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr         = "127.0.0.1:8080"
	defaultSubscriptionsFile  = "subscriptions.yaml"
	defaultPreferencesFile    = "preferences.yaml"
	defaultRefreshDebounceMS  = 500
	defaultFetchTimeoutMS     = 15000
	defaultSilenceThresholdDB = -50.0
	defaultSilenceWindowMS    = 2000
	defaultStatusIntervalMS   = 500
	defaultMPVBinary          = "mpv"
	defaultFeedTitle          = "Podcast Player"
	defaultFeedDescription    = "Episodes aggregated from subscribed podcast feeds."
	defaultFeedLanguage       = "en"
)

// Config holds every runtime setting of the service.
type Config struct {
	ListenAddr        string
	SubscriptionsFile string
	PreferencesFile   string
	// TokenFile is empty when token authentication is disabled.
	TokenFile          string
	RefreshDebounce    time.Duration
	FetchTimeout       time.Duration
	AdClip             string
	SilenceThresholdDB float64
	SilenceWindow      time.Duration
	StatusInterval     time.Duration
	MPVBinary          string
	Feed               FeedMetadata
}

// FeedMetadata represents the static metadata used to render the podcast RSS feed.
type FeedMetadata struct {
	Title       string
	Description string
	Language    string
	Author      string
}

type fileConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	SubscriptionsFile  string   `yaml:"subscriptions_file"`
	PreferencesFile    string   `yaml:"preferences_file"`
	TokenFile          string   `yaml:"token_file"`
	RefreshDebounceMS  *int     `yaml:"refresh_debounce_ms"`
	FetchTimeoutMS     *int     `yaml:"fetch_timeout_ms"`
	AdClip             string   `yaml:"ad_clip"`
	SilenceThresholdDB *float64 `yaml:"silence_threshold_db"`
	SilenceWindowMS    *int     `yaml:"silence_window_ms"`
	StatusIntervalMS   *int     `yaml:"status_interval_ms"`
	MPVBinary          string   `yaml:"mpv_binary"`
	Feed               struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Language    string `yaml:"language"`
		Author      string `yaml:"author"`
	} `yaml:"feed"`
}

// Load resolves the configuration from defaults, the optional YAML file named
// by PODCAST_CONFIG, and environment variable overrides, in that order. File
// paths are made absolute and the files they name are prepared on disk.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:         defaultListenAddr,
		SubscriptionsFile:  defaultSubscriptionsFile,
		PreferencesFile:    defaultPreferencesFile,
		RefreshDebounce:    defaultRefreshDebounceMS * time.Millisecond,
		FetchTimeout:       defaultFetchTimeoutMS * time.Millisecond,
		SilenceThresholdDB: defaultSilenceThresholdDB,
		SilenceWindow:      defaultSilenceWindowMS * time.Millisecond,
		StatusInterval:     defaultStatusIntervalMS * time.Millisecond,
		MPVBinary:          defaultMPVBinary,
		Feed: FeedMetadata{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
		},
	}

	if path := strings.TrimSpace(os.Getenv("PODCAST_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := ValidateListenAddr(cfg.ListenAddr); err != nil {
		return Config{}, fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
	}

	var err error
	if cfg.SubscriptionsFile, err = resolveFile(cfg.SubscriptionsFile, false); err != nil {
		return Config{}, fmt.Errorf("subscriptions file: %w", err)
	}
	if cfg.PreferencesFile, err = resolveFile(cfg.PreferencesFile, false); err != nil {
		return Config{}, fmt.Errorf("preferences file: %w", err)
	}
	if cfg.TokenFile != "" {
		if cfg.TokenFile, err = resolveFile(cfg.TokenFile, true); err != nil {
			return Config{}, fmt.Errorf("token file: %w", err)
		}
	}
	if cfg.AdClip != "" {
		if cfg.AdClip, err = expandPath(cfg.AdClip); err != nil {
			return Config{}, fmt.Errorf("ad clip: %w", err)
		}
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", resolved, err)
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.SubscriptionsFile, fc.SubscriptionsFile)
	setString(&cfg.PreferencesFile, fc.PreferencesFile)
	setString(&cfg.TokenFile, fc.TokenFile)
	setString(&cfg.AdClip, fc.AdClip)
	setString(&cfg.MPVBinary, fc.MPVBinary)
	setString(&cfg.Feed.Title, fc.Feed.Title)
	setString(&cfg.Feed.Description, fc.Feed.Description)
	setString(&cfg.Feed.Language, fc.Feed.Language)
	setString(&cfg.Feed.Author, fc.Feed.Author)

	setMillis(&cfg.RefreshDebounce, fc.RefreshDebounceMS, true)
	setMillis(&cfg.FetchTimeout, fc.FetchTimeoutMS, false)
	setMillis(&cfg.SilenceWindow, fc.SilenceWindowMS, false)
	setMillis(&cfg.StatusInterval, fc.StatusIntervalMS, false)
	if fc.SilenceThresholdDB != nil {
		cfg.SilenceThresholdDB = *fc.SilenceThresholdDB
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ListenAddr, os.Getenv("PODCAST_LISTEN_ADDR"))
	setString(&cfg.SubscriptionsFile, os.Getenv("PODCAST_SUBSCRIPTIONS_FILE"))
	setString(&cfg.PreferencesFile, os.Getenv("PODCAST_PREFERENCES_FILE"))
	setString(&cfg.TokenFile, os.Getenv("PODCAST_TOKEN_FILE"))
	setString(&cfg.AdClip, os.Getenv("PODCAST_AD_CLIP"))
	setString(&cfg.MPVBinary, os.Getenv("PODCAST_MPV_BINARY"))
	setString(&cfg.Feed.Title, os.Getenv("PODCAST_FEED_TITLE"))
	setString(&cfg.Feed.Description, os.Getenv("PODCAST_FEED_DESCRIPTION"))
	setString(&cfg.Feed.Language, os.Getenv("PODCAST_FEED_LANGUAGE"))
	setString(&cfg.Feed.Author, os.Getenv("PODCAST_FEED_AUTHOR"))

	envMillis(&cfg.RefreshDebounce, "PODCAST_REFRESH_DEBOUNCE_MS", true)
	envMillis(&cfg.FetchTimeout, "PODCAST_FETCH_TIMEOUT_MS", false)
	envMillis(&cfg.SilenceWindow, "PODCAST_SILENCE_WINDOW_MS", false)
	envMillis(&cfg.StatusInterval, "PODCAST_STATUS_INTERVAL_MS", false)

	if value := strings.TrimSpace(os.Getenv("PODCAST_SILENCE_THRESHOLD_DB")); value != "" {
		db, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("PODCAST_SILENCE_THRESHOLD_DB: %w", err)
		}
		cfg.SilenceThresholdDB = db
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setMillis(dst *time.Duration, ms *int, allowZero bool) {
	if ms == nil || *ms < 0 || (*ms == 0 && !allowZero) {
		return
	}
	*dst = time.Duration(*ms) * time.Millisecond
}

// envMillis keeps the current value when the variable is unset, malformed
// or negative.
func envMillis(dst *time.Duration, name string, allowZero bool) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		return
	}
	setMillis(dst, &ms, allowZero)
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost for security")
}

// resolveFile returns the absolute path and creates its parent directory.
// With create set, an empty file is created when none exists yet.
func resolveFile(path string, create bool) (string, error) {
	abs, err := expandPath(path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}

	if !create {
		return abs, nil
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return "", err
		}
		if err := file.Close(); err != nil {
			return "", err
		}
	}
	return abs, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
