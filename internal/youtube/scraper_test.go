package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
)

func TestVideoDetailsPrefersMetaTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/watch" || r.URL.Query().Get("v") != "abc123" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected a browser user agent")
		}
		_, _ = io.WriteString(w, `<html><head>
<title>Fallback Title - YouTube</title>
<meta name="title" content="  Morning Jazz  ">
</head><body>
<span itemprop="author"><meta itemprop="author" content="Jazz Cafe"></span>
<a href="/channel/UC123">Other Channel</a>
</body></html>`)
	}))
	defer server.Close()

	details, err := NewScraper(server.URL, server.Client()).VideoDetails(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("VideoDetails: %v", err)
	}
	if details.Title != "Morning Jazz" {
		t.Fatalf("expected meta title, got %q", details.Title)
	}
	if details.ChannelTitle != "Jazz Cafe" {
		t.Fatalf("expected meta author, got %q", details.ChannelTitle)
	}
}

func TestVideoDetailsFallsBackToTitleAndChannelLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><title> Page Title </title></head>
<body><a href="https://www.youtube.com/channel/UC42"> Lo-fi Beats </a></body></html>`)
	}))
	defer server.Close()

	details, err := NewScraper(server.URL, server.Client()).VideoDetails(context.Background(), "x")
	if err != nil {
		t.Fatalf("VideoDetails: %v", err)
	}
	if details.Title != "Page Title" || details.ChannelTitle != "Lo-fi Beats" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestVideoDetailsReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := NewScraper(server.URL, server.Client()).VideoDetails(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

const jazzPlaylist = "PLabcdefghijklmnopqrstuvwxyz012345"

func TestSearchCollectsVideoIDsAcrossQueries(t *testing.T) {
	pages := map[string]string{
		"lofi jazz": `<html><body>
<a href="/watch?v=8vobf7pjLlA">Morning Jazz</a>
<a href="/watch?v=8vobf7pjLlA&amp;t=10s">Morning Jazz again</a>
<a href="/watch?v=PLxk3R9aB2c">Video that starts with PL</a>
<a href="/watch?v=` + jazzPlaylist + `">Playlist</a>
<a href="/channel/UC42">Channel</a>
<script>var ytInitialData = {"videoId":"-YCnXCLQwls","playlistId":"` + jazzPlaylist + `"};</script>
</body></html>`,
		"rain sounds": `<html><body>
<a href="https://www.youtube.com/watch?v=-YCnXCLQwls">Shared result</a>
<a href="/watch?v=q76bMs-NwRk">Rain</a>
</body></html>`,
	}

	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results" {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query().Get("search_query")
		mu.Lock()
		seen = append(seen, query)
		mu.Unlock()

		page, ok := pages[query]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, page)
	}))
	defer server.Close()

	scraper := NewScraper(server.URL, server.Client())
	ids, err := scraper.Search(context.Background(), []string{"lofi jazz", " ", "broken", "rain sounds"})
	if err == nil {
		t.Fatalf("expected the failed query to be reported")
	}

	want := []string{"8vobf7pjLlA", "PLxk3R9aB2c", "-YCnXCLQwls", "q76bMs-NwRk"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("Search = %v, want %v", ids, want)
	}
	if !reflect.DeepEqual(seen, []string{"lofi jazz", "broken", "rain sounds"}) {
		t.Fatalf("unexpected queries sent: %v", seen)
	}
}

func TestSearchWithoutQueries(t *testing.T) {
	ids, err := NewScraper("http://127.0.0.1:0", nil).Search(context.Background(), nil)
	if err != nil || ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty result, got %v %v", ids, err)
	}
}

func TestIsPlaylistID(t *testing.T) {
	cases := map[string]bool{
		jazzPlaylist:  true,
		"PLxk3R9aB2c": false,
		"8vobf7pjLlA": false,
		"":            false,
	}
	for id, want := range cases {
		if got := IsPlaylistID(id); got != want {
			t.Fatalf("IsPlaylistID(%q) = %v, want %v", id, got, want)
		}
	}
}
