package models

import "fmt"

// ContentKind tags the source of a ContentItem.
type ContentKind string

const (
	KindPodcast ContentKind = "podcast"
	KindYouTube ContentKind = "youtube"
)

// ContentItem is the discover-feed union of podcast episodes and YouTube videos.
// Podcast items embed the episode fields; YouTube items only carry VideoID and
// the scraped titles.
type ContentItem struct {
	Kind            ContentKind `json:"type"`
	ChannelTitle    string      `json:"channel_title"`
	ChannelImageURL string      `json:"channel_image_url"`
	VideoID         string      `json:"video_id,omitempty"`
	Episode
}

// PodcastItem wraps an episode of the given channel.
func PodcastItem(ch Channel, ep Episode) ContentItem {
	return ContentItem{
		Kind:            KindPodcast,
		ChannelTitle:    ch.Title,
		ChannelImageURL: ch.ImageURL,
		Episode:         ep,
	}
}

// YouTubeItem builds the item for the video at position index of the
// configured list. Empty title or channel fall back to placeholders.
func YouTubeItem(index int, videoID, title, channel string) ContentItem {
	if title == "" {
		title = fmt.Sprintf("%s %d", DefaultYouTubeTitle, index+1)
	}
	if channel == "" {
		channel = DefaultYouTubeAuthor
	}
	return ContentItem{
		Kind:            KindYouTube,
		ChannelTitle:    channel,
		ChannelImageURL: YouTubeThumbnail(videoID),
		VideoID:         videoID,
		Episode: Episode{
			ID:    fmt.Sprintf("youtube-%d", index),
			Title: title,
		},
	}
}

// YouTubeThumbnail returns the default thumbnail URL for a video.
func YouTubeThumbnail(videoID string) string {
	return "https://img.youtube.com/vi/" + videoID + "/0.jpg"
}
