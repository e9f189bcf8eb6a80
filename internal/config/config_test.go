package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"PODCAST_CONFIG",
	"PODCAST_LISTEN_ADDR",
	"PODCAST_SUBSCRIPTIONS_FILE",
	"PODCAST_PREFERENCES_FILE",
	"PODCAST_TOKEN_FILE",
	"PODCAST_REFRESH_DEBOUNCE_MS",
	"PODCAST_FETCH_TIMEOUT_MS",
	"PODCAST_AD_CLIP",
	"PODCAST_SILENCE_THRESHOLD_DB",
	"PODCAST_SILENCE_WINDOW_MS",
	"PODCAST_STATUS_INTERVAL_MS",
	"PODCAST_MPV_BINARY",
	"PODCAST_FEED_TITLE",
	"PODCAST_FEED_DESCRIPTION",
	"PODCAST_FEED_LANGUAGE",
	"PODCAST_FEED_AUTHOR",
}

// isolate clears the environment and runs the test from a temp directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}

	temp := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(cwd)
	})
	if err := os.Chdir(temp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	return temp
}

func TestLoadDefaults(t *testing.T) {
	temp := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Fatalf("expected default listen address, got %s", cfg.ListenAddr)
	}
	assertSamePath(t, filepath.Dir(cfg.SubscriptionsFile), temp)
	if filepath.Base(cfg.SubscriptionsFile) != "subscriptions.yaml" || filepath.Base(cfg.PreferencesFile) != "preferences.yaml" {
		t.Fatalf("unexpected default files: %s %s", cfg.SubscriptionsFile, cfg.PreferencesFile)
	}
	if cfg.TokenFile != "" || cfg.AdClip != "" {
		t.Fatalf("expected tokens and ads disabled by default, got %+v", cfg)
	}
	if cfg.RefreshDebounce != 500*time.Millisecond || cfg.FetchTimeout != 15*time.Second {
		t.Fatalf("unexpected default timings: %+v", cfg)
	}
	if cfg.SilenceThresholdDB != -50 || cfg.SilenceWindow != 2*time.Second || cfg.StatusInterval != 500*time.Millisecond {
		t.Fatalf("unexpected default playback settings: %+v", cfg)
	}
	if cfg.MPVBinary != "mpv" {
		t.Fatalf("expected mpv binary default, got %s", cfg.MPVBinary)
	}
	if cfg.Feed.Title != defaultFeedTitle || cfg.Feed.Description != defaultFeedDescription || cfg.Feed.Language != defaultFeedLanguage || cfg.Feed.Author != "" {
		t.Fatalf("expected default feed metadata, got %+v", cfg.Feed)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	temp := isolate(t)

	t.Setenv("PODCAST_LISTEN_ADDR", "localhost:9000")
	t.Setenv("PODCAST_SUBSCRIPTIONS_FILE", filepath.Join(temp, "conf", "subs.yaml"))
	t.Setenv("PODCAST_REFRESH_DEBOUNCE_MS", "0")
	t.Setenv("PODCAST_FETCH_TIMEOUT_MS", "2500")
	t.Setenv("PODCAST_SILENCE_THRESHOLD_DB", "-42.5")
	t.Setenv("PODCAST_SILENCE_WINDOW_MS", "3000")
	t.Setenv("PODCAST_MPV_BINARY", "/opt/mpv")
	t.Setenv("PODCAST_FEED_TITLE", "My Cast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != "localhost:9000" {
		t.Fatalf("expected custom listen address, got %s", cfg.ListenAddr)
	}
	if _, err := os.Stat(filepath.Join(temp, "conf")); err != nil {
		t.Fatalf("expected subscriptions directory to be created: %v", err)
	}
	if cfg.RefreshDebounce != 0 || cfg.FetchTimeout != 2500*time.Millisecond {
		t.Fatalf("unexpected timings: %+v", cfg)
	}
	if cfg.SilenceThresholdDB != -42.5 || cfg.SilenceWindow != 3*time.Second {
		t.Fatalf("unexpected silence settings: %+v", cfg)
	}
	if cfg.MPVBinary != "/opt/mpv" || cfg.Feed.Title != "My Cast" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadIgnoresInvalidDurations(t *testing.T) {
	isolate(t)

	t.Setenv("PODCAST_REFRESH_DEBOUNCE_MS", "not-a-number")
	t.Setenv("PODCAST_FETCH_TIMEOUT_MS", "-10")
	t.Setenv("PODCAST_STATUS_INTERVAL_MS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshDebounce != 500*time.Millisecond {
		t.Fatalf("expected fallback debounce on parse error")
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Fatalf("expected fallback timeout on negative value")
	}
	if cfg.StatusInterval != 500*time.Millisecond {
		t.Fatalf("expected fallback status interval on zero")
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	isolate(t)
	t.Setenv("PODCAST_SILENCE_THRESHOLD_DB", "quiet")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed threshold")
	}
}

func TestLoadRejectsPublicListenAddr(t *testing.T) {
	isolate(t)
	t.Setenv("PODCAST_LISTEN_ADDR", "0.0.0.0:8080")

	if _, err := Load(); err == nil {
		t.Fatalf("expected public listen address to be rejected")
	}
}

func TestLoadCreatesTokenFile(t *testing.T) {
	temp := isolate(t)

	tokenFile := filepath.Join(temp, "tokens", "feed.tokens")
	t.Setenv("PODCAST_TOKEN_FILE", tokenFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSamePath(t, cfg.TokenFile, tokenFile)

	info, err := os.Stat(cfg.TokenFile)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Fatalf("expected token path to be a regular file")
	}
}

func TestLoadExpandsHome(t *testing.T) {
	temp := isolate(t)

	home := filepath.Join(temp, "home")
	if err := os.Mkdir(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("PODCAST_PREFERENCES_FILE", "~/player/prefs.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSamePath(t, filepath.Dir(cfg.PreferencesFile), filepath.Join(home, "player"))
}

func TestLoadFromFile(t *testing.T) {
	temp := isolate(t)

	configPath := filepath.Join(temp, "podcast.yaml")
	content := "" +
		"listen_addr: localhost:7000\n" +
		"ad_clip: ads/promo.mp3\n" +
		"silence_threshold_db: -60\n" +
		"status_interval_ms: 250\n" +
		"refresh_debounce_ms: 0\n" +
		"feed:\n" +
		"  title: File Title\n" +
		"  description: File Description\n" +
		"  language: es\n" +
		"  author: File Author\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("PODCAST_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != "localhost:7000" || cfg.SilenceThresholdDB != -60 || cfg.StatusInterval != 250*time.Millisecond {
		t.Fatalf("expected file-derived settings, got %+v", cfg)
	}
	if cfg.RefreshDebounce != 0 {
		t.Fatalf("expected zero debounce from file, got %s", cfg.RefreshDebounce)
	}
	if !filepath.IsAbs(cfg.AdClip) || filepath.Base(cfg.AdClip) != "promo.mp3" {
		t.Fatalf("expected absolute ad clip path, got %s", cfg.AdClip)
	}
	if cfg.Feed.Title != "File Title" || cfg.Feed.Description != "File Description" || cfg.Feed.Language != "es" || cfg.Feed.Author != "File Author" {
		t.Fatalf("expected file-derived metadata, got %+v", cfg.Feed)
	}

	t.Setenv("PODCAST_FEED_TITLE", "Env Title")
	t.Setenv("PODCAST_SILENCE_THRESHOLD_DB", "-45")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load env override: %v", err)
	}
	if cfg.Feed.Title != "Env Title" || cfg.SilenceThresholdDB != -45 {
		t.Fatalf("expected env override to win, got %+v", cfg)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	temp := isolate(t)
	t.Setenv("PODCAST_CONFIG", filepath.Join(temp, "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateListenAddr(t *testing.T) {
	valid := []string{"127.0.0.1:8080", "localhost:9000", "[::1]:7000"}
	for _, addr := range valid {
		if err := ValidateListenAddr(addr); err != nil {
			t.Fatalf("expected %s to be valid: %v", addr, err)
		}
	}

	invalid := []string{"0.0.0.0:80", "192.168.1.1:1234", ":8080"}
	for _, addr := range invalid {
		if err := ValidateListenAddr(addr); err == nil {
			t.Fatalf("expected %s to be rejected", addr)
		}
	}
}

func assertSamePath(t *testing.T, got, want string) {
	t.Helper()
	resolvedGot, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("eval symlinks for %s: %v", got, err)
	}
	resolvedWant, err := filepath.EvalSymlinks(want)
	if err != nil {
		t.Fatalf("eval symlinks for %s: %v", want, err)
	}
	if resolvedGot != resolvedWant {
		t.Fatalf("expected %s, got %s", resolvedWant, resolvedGot)
	}
}
