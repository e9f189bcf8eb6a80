package playback

import (
	"context"
	"time"
)

// Status is one observation of a loaded sound, as reported by the media
// framework.
type Status struct {
	Loaded        bool
	Position      time.Duration
	Duration      time.Duration
	Metering      float64 // loudness in dBFS, meaningful only when HasMetering
	HasMetering   bool
	DidJustFinish bool
	Err           error
}

// Sound is a loaded media handle.
type Sound interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Status(ctx context.Context) (Status, error)
	Unload() error
}

// Backend loads sounds from URLs or local paths. Sounds start paused.
type Backend interface {
	Load(ctx context.Context, source string) (Sound, error)
}
