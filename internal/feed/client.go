package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"podcast-player/internal/models"
)

const (
	defaultTimeout = 15 * time.Second
	maxFeedBytes   = 32 << 20
	userAgent      = "podcast-player/1.0 (+feed fetcher)"
)

// StatusError reports a feed request that completed with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Client fetches and normalizes podcast feeds. Feeds are always fetched
// fresh and processed one at a time in the order given.
type Client struct {
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient returns a Client. A nil httpClient gets a default with a timeout.
func NewClient(httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// Fetch downloads the raw feed document.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// Channels fetches every feed and returns one Channel per feed that could be
// fetched and parsed. Failing feeds are logged and skipped.
func (c *Client) Channels(ctx context.Context, feedURLs []string) []models.Channel {
	channels := make([]models.Channel, 0, len(feedURLs))
	for _, feedURL := range feedURLs {
		if ctx.Err() != nil {
			break
		}

		ch, err := c.channel(ctx, feedURL)
		if err != nil {
			c.logger.Printf("error fetching podcast channel %s: %v", feedURL, err)
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}

// Episodes flattens the episodes of all channels, dropping items without an
// audio enclosure.
func (c *Client) Episodes(ctx context.Context, feedURLs []string) []models.Episode {
	episodes := []models.Episode{}
	for _, ch := range c.Channels(ctx, feedURLs) {
		for _, ep := range ch.Episodes {
			if ep.Playable() {
				episodes = append(episodes, ep)
			}
		}
	}
	return episodes
}

// Search returns the items whose title or description contains query,
// ignoring case. Results keep feed order followed by item order.
func (c *Client) Search(ctx context.Context, query string, feedURLs []string) []models.Episode {
	lowerQuery := strings.ToLower(query)
	results := []models.Episode{}
	for _, feedURL := range feedURLs {
		if ctx.Err() != nil {
			break
		}

		ch, err := c.document(ctx, feedURL)
		if err == nil && len(ch.Items) == 0 {
			err = ErrInvalidFeed
		}
		if err != nil {
			c.logger.Printf("error searching podcast in %s: %v", feedURL, err)
			continue
		}

		for _, item := range ch.Items {
			if item.matches(lowerQuery) {
				results = append(results, item.searchEpisode(ch))
			}
		}
	}
	return results
}

func (c *Client) channel(ctx context.Context, feedURL string) (models.Channel, error) {
	ch, err := c.document(ctx, feedURL)
	if err != nil {
		return models.Channel{}, err
	}
	return ch.toChannel(feedURL), nil
}

func (c *Client) document(ctx context.Context, feedURL string) (*rssChannel, error) {
	data, err := c.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	ch, err := parseDocument(data)
	if err != nil {
		if errors.Is(err, ErrInvalidFeed) {
			return nil, err
		}
		return nil, fmt.Errorf("parse %s: %w", feedURL, err)
	}
	return ch, nil
}
