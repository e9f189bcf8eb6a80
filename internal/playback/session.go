package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"podcast-player/internal/models"
)

// State is the playback state of a Session.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StatePlaying     State = "playing"
	StatePaused      State = "paused"
	StateInsertingAd State = "inserting_ad"
	StateError       State = "error"
)

const (
	DefaultSilenceThreshold = -50.0
	DefaultSilenceWindow    = 2 * time.Second
)

// Options configures a Session.
type Options struct {
	// AdSource is the clip played during detected silence. Empty disables
	// ad insertion.
	AdSource string
	// SilenceThreshold is the loudness in dBFS below which audio counts as
	// silent.
	SilenceThreshold float64
	// SilenceWindow is how long silence must last before the ad is inserted.
	SilenceWindow time.Duration
	Logger        *log.Logger
}

// Session owns the single active sound and the ad clip interleaved into it.
// All transport operations are serialized; status handlers share the same
// lock so ad insertion never races a user command.
type Session struct {
	id      string
	backend Backend
	opts    Options
	logger  *log.Logger

	opMu sync.Mutex

	mu            sync.RWMutex
	state         State
	playlist      []models.Episode
	index         int
	sound         Sound
	ad            Sound
	position      time.Duration
	duration      time.Duration
	lastNonSilent time.Duration
	miniPlayer    bool
	adsPlayed     int
	lastErr       *LoadError
}

// NewSession creates an idle session on top of backend.
func NewSession(backend Backend, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.SilenceThreshold == 0 {
		opts.SilenceThreshold = DefaultSilenceThreshold
	}
	if opts.SilenceWindow <= 0 {
		opts.SilenceWindow = DefaultSilenceWindow
	}
	return &Session{
		id:      uuid.NewString(),
		backend: backend,
		opts:    opts,
		logger:  opts.Logger,
		state:   StateIdle,
		index:   -1,
	}
}

// ID identifies the session in logs and API responses.
func (s *Session) ID() string {
	return s.id
}

// Load replaces the playlist and loads the episode at index, paused.
func (s *Session) Load(ctx context.Context, playlist []models.Episode, index int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.playlist = append([]models.Episode(nil), playlist...)
	s.mu.Unlock()

	return s.loadLocked(ctx, index)
}

// Next loads the following playlist entry.
func (s *Session) Next(ctx context.Context) error {
	return s.step(ctx, 1)
}

// Previous loads the preceding playlist entry.
func (s *Session) Previous(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, delta int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	target := s.index + delta
	inRange := s.index >= 0 && target >= 0 && target < len(s.playlist)
	s.mu.RUnlock()

	if !inRange {
		return ErrNoAdjacentEpisode
	}
	return s.loadLocked(ctx, target)
}

func (s *Session) loadLocked(ctx context.Context, index int) error {
	s.mu.Lock()
	s.state = StateLoading
	s.lastErr = nil
	sound, ad := s.sound, s.ad
	s.sound, s.ad = nil, nil
	s.mu.Unlock()

	s.unload(sound, ad)

	s.mu.RLock()
	var episode models.Episode
	valid := index >= 0 && index < len(s.playlist)
	if valid {
		episode = s.playlist[index]
	}
	s.mu.RUnlock()

	if !valid || !episode.Playable() {
		return s.failLocked(index, ErrInvalidEpisode)
	}

	sound, err := s.backend.Load(ctx, episode.AudioURL)
	if err != nil {
		return s.failLocked(index, err)
	}

	if s.opts.AdSource != "" {
		ad, err = s.backend.Load(ctx, s.opts.AdSource)
		if err != nil {
			s.logger.Printf("session %s: ad clip unavailable, continuing without ads: %v", s.id, err)
			ad = nil
		}
	} else {
		ad = nil
	}

	s.mu.Lock()
	s.sound, s.ad = sound, ad
	s.index = index
	s.position, s.duration, s.lastNonSilent = 0, episode.Duration, 0
	s.state = StatePaused
	s.mu.Unlock()

	s.logger.Printf("session %s: loaded %q (%d/%d)", s.id, episode.Title, index+1, len(s.playlist))
	return nil
}

func (s *Session) failLocked(index int, err error) error {
	loadErr := &LoadError{Category: Categorize(err), Err: err}

	s.mu.Lock()
	s.state = StateError
	if index >= 0 && index < len(s.playlist) {
		s.index = index
	}
	s.lastErr = loadErr
	s.mu.Unlock()

	s.logger.Printf("session %s: error loading audio: %v", s.id, loadErr)
	return loadErr
}

// Play resumes the main sound.
func (s *Session) Play(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.playLocked(ctx)
}

// Pause pauses the main sound.
func (s *Session) Pause(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.pauseLocked(ctx)
}

// Toggle flips between playing and paused, as the mini-player button does.
func (s *Session) Toggle(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state == StatePlaying {
		return s.pauseLocked(ctx)
	}
	return s.playLocked(ctx)
}

func (s *Session) playLocked(ctx context.Context) error {
	sound, state, err := s.controllable()
	if err != nil {
		return err
	}
	if state == StatePlaying {
		return nil
	}

	if err := sound.Play(ctx); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	s.mu.Lock()
	s.state = StatePlaying
	s.lastNonSilent = s.position
	s.mu.Unlock()
	return nil
}

func (s *Session) pauseLocked(ctx context.Context) error {
	sound, state, err := s.controllable()
	if err != nil {
		return err
	}
	if state == StatePaused {
		return nil
	}

	if err := sound.Pause(ctx); err != nil {
		return fmt.Errorf("pause: %w", err)
	}

	s.mu.Lock()
	s.state = StatePaused
	s.mu.Unlock()
	return nil
}

// Seek moves the main sound to position, clamped to the known duration.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	sound, _, err := s.controllable()
	if err != nil {
		return err
	}

	s.mu.RLock()
	duration := s.duration
	s.mu.RUnlock()

	if position < 0 {
		position = 0
	}
	if duration > 0 && position > duration {
		position = duration
	}

	if err := sound.Seek(ctx, position); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	s.mu.Lock()
	s.position = position
	s.lastNonSilent = position
	s.mu.Unlock()
	return nil
}

func (s *Session) controllable() (Sound, State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateInsertingAd {
		return nil, s.state, ErrAdPlaying
	}
	if s.sound == nil || (s.state != StatePlaying && s.state != StatePaused) {
		return nil, s.state, ErrNotLoaded
	}
	return s.sound, s.state, nil
}

// Minimize shows the mini-player for the loaded episode.
func (s *Session) Minimize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sound == nil {
		return ErrNotLoaded
	}
	s.miniPlayer = true
	return nil
}

// Close stops playback, releases both sounds and hides the mini-player.
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	sound, ad := s.sound, s.ad
	s.sound, s.ad = nil, nil
	s.state = StateIdle
	s.miniPlayer = false
	s.playlist = nil
	s.index = -1
	s.position, s.duration, s.lastNonSilent = 0, 0, 0
	s.lastErr = nil
	s.mu.Unlock()

	return s.unload(sound, ad)
}

func (s *Session) unload(sounds ...Sound) error {
	var errs []error
	for _, snd := range sounds {
		if snd == nil {
			continue
		}
		if err := snd.Unload(); err != nil {
			s.logger.Printf("session %s: unload error: %v", s.id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleStatus consumes a status update of the main sound. While playing,
// silence that outlasts the configured window triggers ad insertion.
func (s *Session) HandleStatus(ctx context.Context, st Status) {
	s.handleStatus(ctx, nil, st)
}

// handleStatus applies st when from is nil or still the active sound. A
// status read from a sound that has since been replaced is dropped.
func (s *Session) handleStatus(ctx context.Context, from Sound, st Status) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if st.Err != nil {
		s.logger.Printf("session %s: playback error: %v", s.id, st.Err)
		return
	}
	if !st.Loaded {
		return
	}

	s.mu.Lock()
	if s.sound == nil || (from != nil && from != s.sound) {
		s.mu.Unlock()
		return
	}
	s.position = st.Position
	if st.Duration > 0 {
		s.duration = st.Duration
	}

	insert := false
	silent := st.HasMetering && st.Metering < s.opts.SilenceThreshold
	switch {
	case st.DidJustFinish && s.state == StatePlaying:
		s.state = StatePaused
	case silent:
		insert = s.state == StatePlaying && s.ad != nil &&
			st.Position-s.lastNonSilent > s.opts.SilenceWindow
	default:
		s.lastNonSilent = st.Position
	}
	s.mu.Unlock()

	if insert {
		s.insertAdLocked(ctx)
	}
}

func (s *Session) insertAdLocked(ctx context.Context) {
	s.mu.Lock()
	sound, ad := s.sound, s.ad
	s.state = StateInsertingAd
	s.mu.Unlock()

	s.logger.Printf("session %s: silence detected, inserting ad", s.id)

	err := sound.Pause(ctx)
	if err == nil {
		err = ad.Seek(ctx, 0)
	}
	if err == nil {
		err = ad.Play(ctx)
	}
	if err != nil {
		s.logger.Printf("session %s: ad insertion failed: %v", s.id, err)
		s.resumeAfterAdLocked(ctx)
		return
	}

	s.mu.Lock()
	s.adsPlayed++
	s.mu.Unlock()
}

// HandleAdStatus consumes a status update of the ad clip. When the ad
// finishes, main playback resumes.
func (s *Session) HandleAdStatus(ctx context.Context, st Status) {
	s.handleAdStatus(ctx, nil, st)
}

func (s *Session) handleAdStatus(ctx context.Context, from Sound, st Status) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	inAd := s.state == StateInsertingAd && (from == nil || from == s.ad)
	s.mu.RUnlock()
	if !inAd {
		return
	}

	if st.Err != nil {
		s.logger.Printf("session %s: ad playback error: %v", s.id, st.Err)
	}

	if st.DidJustFinish || st.Err != nil {
		s.resumeAfterAdLocked(ctx)
	}
}

func (s *Session) resumeAfterAdLocked(ctx context.Context) {
	s.mu.RLock()
	sound, ad := s.sound, s.ad
	s.mu.RUnlock()

	if ad != nil {
		if err := ad.Pause(ctx); err != nil {
			s.logger.Printf("session %s: pausing ad: %v", s.id, err)
		}
	}

	state := StatePlaying
	if err := sound.Play(ctx); err != nil {
		s.logger.Printf("session %s: resuming after ad: %v", s.id, err)
		state = StatePaused
	}

	s.mu.Lock()
	s.state = state
	s.lastNonSilent = s.position
	s.mu.Unlock()
}

// Watch polls the active sound every interval and feeds the status
// handlers until ctx is cancelled.
func (s *Session) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Session) poll(ctx context.Context) {
	s.mu.RLock()
	state, sound, ad := s.state, s.sound, s.ad
	s.mu.RUnlock()

	switch {
	case state == StateInsertingAd && ad != nil:
		st, err := ad.Status(ctx)
		if err != nil {
			st = Status{Err: err}
		}
		s.handleAdStatus(ctx, ad, st)
	case (state == StatePlaying || state == StatePaused) && sound != nil:
		st, err := sound.Status(ctx)
		if err != nil {
			st = Status{Err: err}
		}
		s.handleStatus(ctx, sound, st)
	}
}

// Snapshot is a read-only view of a Session.
type Snapshot struct {
	ID                string          `json:"id"`
	State             State           `json:"state"`
	Episode           *models.Episode `json:"episode,omitempty"`
	Index             int             `json:"index"`
	PlaylistLength    int             `json:"playlist_length"`
	PositionSeconds   float64         `json:"position_seconds"`
	DurationSeconds   float64         `json:"duration_seconds"`
	MiniPlayerVisible bool            `json:"mini_player_visible"`
	AdsPlayed         int             `json:"ads_played"`
	Error             *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo describes the most recent load failure.
type ErrorInfo struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:                s.id,
		State:             s.state,
		Index:             s.index,
		PlaylistLength:    len(s.playlist),
		PositionSeconds:   s.position.Seconds(),
		DurationSeconds:   s.duration.Seconds(),
		MiniPlayerVisible: s.miniPlayer,
		AdsPlayed:         s.adsPlayed,
	}
	if s.index >= 0 && s.index < len(s.playlist) {
		episode := s.playlist[s.index]
		snap.Episode = &episode
	}
	if s.lastErr != nil {
		snap.Error = &ErrorInfo{Category: s.lastErr.Category, Message: s.lastErr.Err.Error()}
	}
	return snap
}
