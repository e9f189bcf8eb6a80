package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxPageBytes     = 8 << 20
)

// playlistIDLength is the length of a PL-prefixed playlist ID.
const playlistIDLength = 34

// Result pages embed their listing as JSON inside a script.
var embeddedVideoID = regexp.MustCompile(`"videoId":"([A-Za-z0-9_-]{11})"`)

// VideoDetails holds the fields scraped from a watch page.
type VideoDetails struct {
	Title        string
	ChannelTitle string
}

// Scraper reads video titles from public watch pages and video IDs from
// search result pages. It needs no API key.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
}

// NewScraper returns a Scraper targeting baseURL, or youtube.com when empty.
func NewScraper(baseURL string, httpClient *http.Client) *Scraper {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Scraper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// VideoDetails fetches the watch page of videoID and extracts its title and
// channel name.
func (s *Scraper) VideoDetails(ctx context.Context, videoID string) (*VideoDetails, error) {
	doc, err := s.fetchPage(ctx, s.baseURL+"/watch?v="+url.QueryEscape(videoID))
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	return extractDetails(doc), nil
}

// Search runs every query against the results page and returns the video IDs
// found, first occurrence first. Playlist IDs are dropped. A failed query is
// reported in the joined error while the other queries still contribute.
func (s *Scraper) Search(ctx context.Context, queries []string) ([]string, error) {
	seen := make(map[string]struct{})
	ids := []string{}
	var errs []error

	for _, query := range queries {
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		doc, err := s.fetchPage(ctx, s.baseURL+"/results?search_query="+url.QueryEscape(query))
		if err != nil {
			errs = append(errs, fmt.Errorf("search %q: %w", query, err))
			continue
		}
		for _, id := range extractVideoIDs(doc) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, errors.Join(errs...)
}

// IsPlaylistID reports whether id has the shape of a playlist ID rather than
// a video ID.
func IsPlaylistID(id string) bool {
	return strings.HasPrefix(id, "PL") && len(id) == playlistIDLength
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// extractVideoIDs collects watch link targets and the IDs embedded in
// scripts, in document order.
func extractVideoIDs(doc *html.Node) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" || IsPlaylistID(id) {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "a":
			href := attr(n, "href")
			if !strings.Contains(href, "watch?v=") {
				return
			}
			if u, err := url.Parse(href); err == nil {
				add(u.Query().Get("v"))
			}
		case "script":
			for _, m := range embeddedVideoID.FindAllStringSubmatch(textContent(n), -1) {
				add(m[1])
			}
		}
	})
	return ids
}

func extractDetails(doc *html.Node) *VideoDetails {
	var (
		metaTitle   string
		docTitle    string
		metaAuthor  string
		channelText strings.Builder
	)

	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "meta":
			if metaTitle == "" && attr(n, "name") == "title" {
				metaTitle = attr(n, "content")
			}
			if metaAuthor == "" && attr(n, "itemprop") == "author" {
				metaAuthor = attr(n, "content")
			}
		case "title":
			if docTitle == "" {
				docTitle = textContent(n)
			}
		case "a":
			if strings.Contains(attr(n, "href"), "/channel/") {
				channelText.WriteString(textContent(n))
			}
		}
	})

	title := metaTitle
	if title == "" {
		title = docTitle
	}
	channel := metaAuthor
	if channel == "" {
		channel = channelText.String()
	}
	return &VideoDetails{
		Title:        strings.TrimSpace(title),
		ChannelTitle: strings.TrimSpace(channel),
	}
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
