package models

import "time"

// Placeholder values used when a feed omits optional fields.
const (
	UnknownChannel       = "Unknown Channel"
	UnknownAuthor        = "Unknown Author"
	NoDescription        = "No description available."
	DefaultImageURL      = "https://example.com/default-image.jpg"
	DefaultYouTubeTitle  = "YouTube Audio"
	DefaultYouTubeAuthor = "YouTube Channel"
)

// Channel is a normalized podcast feed.
type Channel struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Summary     string    `json:"summary,omitempty"`
	Author      string    `json:"author,omitempty"`
	ImageURL    string    `json:"image_url"`
	Episodes    []Episode `json:"episodes"`
}

// Episode is a single normalized feed item.
type Episode struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Author      string        `json:"author"`
	ImageURL    string        `json:"image_url"`
	AudioURL    string        `json:"audio_url"`
	Description string        `json:"description"`
	PubDate     string        `json:"pub_date,omitempty"`
	PublishedAt time.Time     `json:"published_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Playable reports whether the episode carries an audio enclosure.
func (e Episode) Playable() bool {
	return e.AudioURL != ""
}
