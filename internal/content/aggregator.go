package content

import (
	"context"
	"log"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"podcast-player/internal/models"
	"podcast-player/internal/youtube"
)

const maxConcurrentScrapes = 4

// ChannelSource yields normalized podcast channels.
type ChannelSource interface {
	Channels(ctx context.Context, feedURLs []string) []models.Channel
}

// VideoSource yields scraped YouTube video details and search results.
type VideoSource interface {
	VideoDetails(ctx context.Context, videoID string) (*youtube.VideoDetails, error)
	Search(ctx context.Context, queries []string) ([]string, error)
}

// SourceList provides the configured feed URLs, video IDs and video search
// queries.
type SourceList interface {
	Feeds() []string
	Videos() []string
	VideoQueries() []string
}

// Aggregator builds the mixed discover list.
type Aggregator struct {
	channels ChannelSource
	videos   VideoSource
	sources  SourceList
	logger   *log.Logger

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewAggregator wires an Aggregator. rng may be nil for a randomly seeded
// generator.
func NewAggregator(channels ChannelSource, videos VideoSource, sources SourceList, rng *rand.Rand, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Aggregator{
		channels: channels,
		videos:   videos,
		sources:  sources,
		logger:   logger,
		rng:      rng,
	}
}

// Fetch returns every podcast episode of the configured feeds together with
// one item per configured or searched video, in random order.
func (a *Aggregator) Fetch(ctx context.Context) []models.ContentItem {
	items := a.podcastItems(ctx)
	items = append(items, a.videoItems(ctx)...)

	a.randMu.Lock()
	a.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	a.randMu.Unlock()

	return items
}

func (a *Aggregator) podcastItems(ctx context.Context) []models.ContentItem {
	items := []models.ContentItem{}
	for _, ch := range a.channels.Channels(ctx, a.sources.Feeds()) {
		for _, ep := range ch.Episodes {
			items = append(items, models.PodcastItem(ch, ep))
		}
	}
	return items
}

func (a *Aggregator) videoItems(ctx context.Context) []models.ContentItem {
	ids := a.sources.Videos()
	if queries := a.sources.VideoQueries(); len(queries) > 0 {
		found, err := a.videos.Search(ctx, queries)
		if err != nil {
			a.logger.Printf("error searching YouTube videos: %v", err)
		}
		ids = VideoIDs(ids, found)
	}
	items := make([]models.ContentItem, len(ids))

	sem := make(chan struct{}, maxConcurrentScrapes)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(index int, videoID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var title, channel string
			details, err := a.videos.VideoDetails(ctx, videoID)
			if err != nil {
				a.logger.Printf("error fetching YouTube video details for %s: %v", videoID, err)
			} else if details != nil {
				title, channel = details.Title, details.ChannelTitle
			}
			items[index] = models.YouTubeItem(index, videoID, title, channel)
		}(i, id)
	}
	wg.Wait()

	return items
}

// VideoIDs merges lists of video IDs, trimming them and keeping the first
// occurrence of each.
func VideoIDs(lists ...[]string) []string {
	ids := []string{}
	seen := make(map[string]struct{})
	for _, id := range slices.Concat(lists...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
