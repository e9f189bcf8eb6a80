package playback

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidEpisode marks a playlist entry that cannot be played.
	ErrInvalidEpisode = errors.New("invalid episode or audio URL")
	// ErrNetwork is wrapped by backends when the media source is unreachable.
	ErrNetwork = errors.New("no internet connection")
	// ErrNotLoaded is returned by transport controls when nothing is loaded.
	ErrNotLoaded = errors.New("no episode loaded")
	// ErrAdPlaying is returned by transport controls while an ad is playing.
	ErrAdPlaying = errors.New("ad is playing")
	// ErrNoAdjacentEpisode is returned by Next and Previous at the playlist ends.
	ErrNoAdjacentEpisode = errors.New("no adjacent episode")
)

// ErrorCategory groups load failures for presentation.
type ErrorCategory string

const (
	CategoryNetwork ErrorCategory = "network"
	CategoryData    ErrorCategory = "data"
	CategoryUnknown ErrorCategory = "unknown"
)

// LoadError is returned when an episode fails to load.
type LoadError struct {
	Category ErrorCategory
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed (%s): %v", e.Category, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Categorize maps a load error onto a presentation category.
func Categorize(err error) ErrorCategory {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrInvalidEpisode):
		return CategoryData
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}
