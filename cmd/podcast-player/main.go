package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podcast-player/internal/adclip"
	"podcast-player/internal/auth"
	"podcast-player/internal/config"
	"podcast-player/internal/content"
	"podcast-player/internal/feed"
	"podcast-player/internal/mpv"
	"podcast-player/internal/playback"
	"podcast-player/internal/preferences"
	"podcast-player/internal/server"
	"podcast-player/internal/subscriptions"
	"podcast-player/internal/youtube"
)

func main() {
	logger := log.New(os.Stdout, "podcast-player ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	subs, err := subscriptions.NewStore(cfg.SubscriptionsFile, cfg.RefreshDebounce, logger)
	if err != nil {
		logger.Fatalf("initialise subscriptions: %v", err)
	}
	defer func() {
		if err := subs.Close(); err != nil {
			logger.Printf("error closing subscriptions: %v", err)
		}
	}()

	prefs, err := preferences.NewStore(cfg.PreferencesFile, cfg.RefreshDebounce, logger)
	if err != nil {
		logger.Fatalf("initialise preferences: %v", err)
	}
	defer func() {
		if err := prefs.Close(); err != nil {
			logger.Printf("error closing preferences: %v", err)
		}
	}()

	var tokenStore *auth.TokenStore
	if cfg.TokenFile != "" {
		tokenStore, err = auth.NewTokenStore(cfg.TokenFile, cfg.RefreshDebounce, logger)
		if err != nil {
			logger.Fatalf("initialise token store: %v", err)
		}
		defer func() {
			if err := tokenStore.Close(); err != nil {
				logger.Printf("error closing token store: %v", err)
			}
		}()
	}

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	feeds := feed.NewClient(httpClient, logger)
	scraper := youtube.NewScraper("", httpClient)
	aggregator := content.NewAggregator(feeds, scraper, subs, nil, logger)

	adSource := ""
	if cfg.AdClip != "" {
		clip, err := adclip.Load(cfg.AdClip)
		if err != nil {
			logger.Printf("ad clip unavailable, ads disabled: %v", err)
		} else {
			adSource = clip.Path
			logger.Printf("ad clip %q by %q (%s, %d bytes)", clip.Title, clip.Artist, clip.Duration, clip.SizeBytes)
		}
	}

	session := playback.NewSession(mpv.New(cfg.MPVBinary, logger), playback.Options{
		AdSource:         adSource,
		SilenceThreshold: cfg.SilenceThresholdDB,
		SilenceWindow:    cfg.SilenceWindow,
		Logger:           logger,
	})
	defer func() {
		if err := session.Close(); err != nil {
			logger.Printf("error closing playback session: %v", err)
		}
	}()

	feedMeta := server.FeedMetadata{
		Title:       cfg.Feed.Title,
		Description: cfg.Feed.Description,
		Language:    cfg.Feed.Language,
		Author:      cfg.Feed.Author,
	}

	// A nil *auth.TokenStore must not become a non-nil interface.
	var validator server.TokenValidator
	if tokenStore != nil {
		validator = tokenStore
	}

	handler := server.New(server.Services{
		Feeds:         feeds,
		Subscriptions: subs,
		Content:       aggregator,
		Preferences:   prefs,
		Player:        session,
	}, validator, feedMeta, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go session.Watch(ctx, cfg.StatusInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s (session %s, %d feeds, %d videos)", cfg.ListenAddr, session.ID(), len(subs.Feeds()), len(subs.Videos()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	logger.Println("shutdown complete")
}
