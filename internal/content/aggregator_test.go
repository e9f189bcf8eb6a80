package content

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand/v2"
	"reflect"
	"sort"
	"sync"
	"testing"

	"podcast-player/internal/models"
	"podcast-player/internal/youtube"
)

type fakeChannels struct {
	channels []models.Channel
	gotURLs  []string
}

func (f *fakeChannels) Channels(_ context.Context, urls []string) []models.Channel {
	f.gotURLs = urls
	return f.channels
}

type fakeVideos struct {
	mu        sync.Mutex
	details   map[string]*youtube.VideoDetails
	calls     []string
	found     []string
	searchErr error
	queries   []string
}

func (f *fakeVideos) Search(_ context.Context, queries []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queries...)
	return f.found, f.searchErr
}

func (f *fakeVideos) VideoDetails(_ context.Context, id string) (*youtube.VideoDetails, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return nil, errors.New("scrape failed")
}

type staticSources struct {
	feeds   []string
	videos  []string
	queries []string
}

func (s staticSources) Feeds() []string        { return s.feeds }
func (s staticSources) Videos() []string       { return s.videos }
func (s staticSources) VideoQueries() []string { return s.queries }

func testChannels() *fakeChannels {
	return &fakeChannels{channels: []models.Channel{
		{
			ID:       "https://a.example/feed",
			Title:    "A",
			ImageURL: "https://a.example/a.jpg",
			Episodes: []models.Episode{{ID: "a1", AudioURL: "https://a.example/1.mp3"}, {ID: "a2"}},
		},
		{
			ID:       "https://b.example/feed",
			Title:    "B",
			Episodes: []models.Episode{{ID: "b1", AudioURL: "https://b.example/1.mp3"}},
		},
	}}
}

func TestFetchMergesPodcastsAndVideos(t *testing.T) {
	channels := testChannels()
	videos := &fakeVideos{details: map[string]*youtube.VideoDetails{
		"vid1": {Title: "Jazz", ChannelTitle: "Cafe"},
	}}
	sources := staticSources{
		feeds:  []string{"https://a.example/feed", "https://b.example/feed"},
		videos: []string{"vid1", "vid2"},
	}

	agg := NewAggregator(channels, videos, sources, rand.New(rand.NewPCG(1, 2)), log.New(io.Discard, "", 0))
	items := agg.Fetch(context.Background())

	if len(items) != 3+2 {
		t.Fatalf("expected episodes plus videos, got %d", len(items))
	}
	if !reflect.DeepEqual(channels.gotURLs, sources.feeds) {
		t.Fatalf("expected configured feeds to be fetched, got %v", channels.gotURLs)
	}

	byID := make(map[string]models.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	a1 := byID["a1"]
	if a1.Kind != models.KindPodcast || a1.ChannelTitle != "A" || a1.ChannelImageURL != "https://a.example/a.jpg" {
		t.Fatalf("unexpected podcast item: %+v", a1)
	}

	yt0 := byID["youtube-0"]
	if yt0.Kind != models.KindYouTube || yt0.VideoID != "vid1" || yt0.Title != "Jazz" || yt0.ChannelTitle != "Cafe" {
		t.Fatalf("unexpected scraped video item: %+v", yt0)
	}
	if yt0.ChannelImageURL != "https://img.youtube.com/vi/vid1/0.jpg" {
		t.Fatalf("unexpected thumbnail %q", yt0.ChannelImageURL)
	}

	yt1 := byID["youtube-1"]
	if yt1.Title != "YouTube Audio 2" || yt1.ChannelTitle != models.DefaultYouTubeAuthor {
		t.Fatalf("expected fallbacks for failed scrape, got %+v", yt1)
	}
}

func TestFetchShuffleIsDeterministicForSeed(t *testing.T) {
	sources := staticSources{feeds: []string{"a", "b"}, videos: []string{"v1", "v2", "v3"}}

	order := func() []string {
		agg := NewAggregator(testChannels(), &fakeVideos{}, sources, rand.New(rand.NewPCG(7, 7)), log.New(io.Discard, "", 0))
		var ids []string
		for _, item := range agg.Fetch(context.Background()) {
			ids = append(ids, item.ID)
		}
		return ids
	}

	first, second := order(), order()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical order for identical seeds: %v vs %v", first, second)
	}
	if len(first) != 6 {
		t.Fatalf("expected 6 items, got %d", len(first))
	}
}

func TestFetchWithNoSources(t *testing.T) {
	agg := NewAggregator(&fakeChannels{}, &fakeVideos{}, staticSources{}, nil, log.New(io.Discard, "", 0))
	items := agg.Fetch(context.Background())
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %#v", items)
	}
}

func TestVideoIDs(t *testing.T) {
	got := VideoIDs(
		[]string{" 8vobf7pjLlA ", "", "PLxk3R9aB2c", "-YCnXCLQwls"},
		[]string{"8vobf7pjLlA", "q76bMs-NwRk"},
	)
	want := []string{"8vobf7pjLlA", "PLxk3R9aB2c", "-YCnXCLQwls", "q76bMs-NwRk"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("VideoIDs = %v, want %v", got, want)
	}
	if got := VideoIDs(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %#v", got)
	}
}

func TestFetchKeepsVideoIDsStartingWithPL(t *testing.T) {
	channels := testChannels()
	videos := &fakeVideos{}
	sources := staticSources{
		feeds:  []string{"https://a.example/feed", "https://b.example/feed"},
		videos: []string{"8vobf7pjLlA", "PLxk3R9aB2c"},
	}

	items := NewAggregator(channels, videos, sources, nil, log.New(io.Discard, "", 0)).Fetch(context.Background())
	if len(items) != 3+2 {
		t.Fatalf("expected every configured video to be listed, got %d items", len(items))
	}

	var found bool
	for _, item := range items {
		if item.VideoID == "PLxk3R9aB2c" {
			found = true
		}
	}
	if !found {
		t.Fatalf("video PLxk3R9aB2c missing from %+v", items)
	}
	if len(videos.queries) != 0 {
		t.Fatalf("expected no search without queries, got %v", videos.queries)
	}
}

func TestFetchAddsSearchedVideos(t *testing.T) {
	videos := &fakeVideos{
		found:     []string{"vid2", "vid3"},
		searchErr: errors.New("one query failed"),
	}
	sources := staticSources{
		videos:  []string{"vid1", "vid2"},
		queries: []string{"lofi jazz", "rain sounds"},
	}

	items := NewAggregator(&fakeChannels{}, videos, sources, nil, log.New(io.Discard, "", 0)).Fetch(context.Background())

	var ids []string
	for _, item := range items {
		ids = append(ids, item.VideoID)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"vid1", "vid2", "vid3"}) {
		t.Fatalf("expected configured and searched videos once each, got %v", ids)
	}
	if !reflect.DeepEqual(videos.queries, sources.queries) {
		t.Fatalf("unexpected search queries %v", videos.queries)
	}
}
