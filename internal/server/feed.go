package server

import (
	"bytes"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"podcast-player/internal/models"
)

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	base := h.requestBaseURL(r)
	if base == nil {
		h.logger.Printf("unable to determine request base URL")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	episodes := h.svc.Feeds.Episodes(r.Context(), h.svc.Subscriptions.Feeds())
	data, err := h.buildRSSFeed(base, r.URL.Path, episodes)
	if err != nil {
		h.logger.Printf("failed to build RSS feed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.logger.Printf("failed to write RSS feed: %v", err)
	}
}

func (h *serverHandler) requestBaseURL(r *http.Request) *url.URL {
	scheme := "http"
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				scheme = candidate
			}
		}
	} else if r.TLS != nil {
		scheme = "https"
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return nil
	}

	return &url.URL{Scheme: scheme, Host: host}
}

// buildRSSFeed republishes the subscribed episodes, newest first, as a single
// podcast feed. Enclosures point at the upstream hosts.
func (h *serverHandler) buildRSSFeed(base *url.URL, requestPath string, episodes []models.Episode) ([]byte, error) {
	feedURL := *base
	feedURL.Path = requestPath

	channelLink := *base
	channelLink.Path = ""

	sorted := make([]models.Episode, len(episodes))
	copy(sorted, episodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})

	var lastBuild time.Time
	for _, ep := range sorted {
		if ep.PublishedAt.After(lastBuild) {
			lastBuild = ep.PublishedAt.UTC()
		}
	}
	if lastBuild.IsZero() {
		lastBuild = time.Now().UTC()
	}

	p := podcast.New(h.feed.Title, channelLink.String(), h.feed.Description, nil, &lastBuild)
	p.Language = h.feed.Language
	p.AddAtomLink(feedURL.String())
	if h.feed.Author != "" {
		p.IAuthor = h.feed.Author
	}

	for _, ep := range sorted {
		if !ep.Playable() {
			continue
		}

		item := podcast.Item{
			Title:       ep.Title,
			Description: ep.Description,
			GUID:        ep.ID,
			IAuthor:     ep.Author,
		}
		if item.Title == "" {
			item.Title = ep.AudioURL
		}
		if item.GUID == "" {
			item.GUID = ep.AudioURL
		}
		if !ep.PublishedAt.IsZero() {
			published := ep.PublishedAt.UTC()
			item.AddPubDate(&published)
		}
		if ep.ImageURL != "" && ep.ImageURL != models.DefaultImageURL {
			item.AddImage(ep.ImageURL)
		}
		if ep.Duration > 0 {
			item.AddDuration(int64(ep.Duration.Seconds()))
		}
		item.AddEnclosure(ep.AudioURL, enclosureType(ep.AudioURL), 0)

		if _, err := p.AddItem(item); err != nil {
			h.logger.Printf("skipping episode %q in RSS feed: %v", ep.Title, err)
		}
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func enclosureType(audioURL string) podcast.EnclosureType {
	ext := ""
	if u, err := url.Parse(audioURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	switch ext {
	case ".m4a", ".aac":
		return podcast.M4A
	case ".mp4":
		return podcast.MP4
	case ".m4v":
		return podcast.M4V
	case ".mov":
		return podcast.MOV
	default:
		return podcast.MP3
	}
}
