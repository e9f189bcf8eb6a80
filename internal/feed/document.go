package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// ErrInvalidFeed is returned for documents without an rss/channel element.
var ErrInvalidFeed = errors.New("invalid RSS feed format")

// Feeds in the wild mix plain RSS elements with namespaced variants that share
// a local name (title and itunes:title, image and itunes:image, author and
// itunes:author), so every such element is collected as a list and resolved
// by namespace afterwards.
type rssDocument struct {
	XMLName xml.Name    `xml:"rss"`
	Channel *rssChannel `xml:"channel"`
}

type rssChannel struct {
	Titles       []textNode  `xml:"title"`
	Descriptions []textNode  `xml:"description"`
	Authors      []textNode  `xml:"author"`
	Images       []imageNode `xml:"image"`
	Items        []rssItem   `xml:"item"`
}

type rssItem struct {
	Titles       []textNode      `xml:"title"`
	Descriptions []textNode      `xml:"description"`
	Authors      []textNode      `xml:"author"`
	Images       []imageNode     `xml:"image"`
	GUID         *textNode       `xml:"guid"`
	PubDate      string          `xml:"pubDate"`
	Durations    []textNode      `xml:"duration"`
	Enclosures   []enclosureNode `xml:"enclosure"`
}

type textNode struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type imageNode struct {
	XMLName xml.Name
	Href    string `xml:"href,attr"`
	URL     string `xml:"url"`
	Text    string `xml:",chardata"`
}

type enclosureNode struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

func parseDocument(data []byte) (*rssChannel, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	var doc rssDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if doc.Channel == nil {
		return nil, ErrInvalidFeed
	}
	return doc.Channel, nil
}

func isITunes(name xml.Name) bool {
	return name.Space == "itunes" || strings.Contains(strings.ToLower(name.Space), "itunes")
}

// plainText returns the first non-namespaced value, or "" when absent.
func plainText(nodes []textNode) string {
	for _, node := range nodes {
		if node.XMLName.Space == "" {
			return strings.TrimSpace(node.Value)
		}
	}
	return ""
}

func itunesText(nodes []textNode) string {
	for _, node := range nodes {
		if isITunes(node.XMLName) {
			if value := strings.TrimSpace(node.Value); value != "" {
				return value
			}
		}
	}
	return ""
}

// itunesImage accepts both <itunes:image href="..."/> and the text form.
func itunesImage(nodes []imageNode) string {
	for _, node := range nodes {
		if !isITunes(node.XMLName) {
			continue
		}
		if href := strings.TrimSpace(node.Href); href != "" {
			return href
		}
		if text := strings.TrimSpace(node.Text); text != "" {
			return text
		}
	}
	return ""
}

func rssImage(nodes []imageNode) string {
	for _, node := range nodes {
		if node.XMLName.Space == "" {
			if url := strings.TrimSpace(node.URL); url != "" {
				return url
			}
		}
	}
	return ""
}

func (it rssItem) guid() string {
	if it.GUID == nil {
		return ""
	}
	return strings.TrimSpace(it.GUID.Value)
}

// audioURL returns the first enclosure carrying a URL.
func (it rssItem) audioURL() string {
	for _, enc := range it.Enclosures {
		if url := strings.TrimSpace(enc.URL); url != "" {
			return url
		}
	}
	return ""
}

func parsePubDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		time.RFC822Z,
		time.RFC822,
		"2 Jan 2006 15:04:05 -0700",
		time.RFC3339,
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", value)
}

// parseDuration accepts plain seconds, MM:SS and HH:MM:SS.
func parseDuration(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var total time.Duration
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second
}
