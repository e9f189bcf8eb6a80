package feed

import (
	"strings"

	"github.com/kennygrant/sanitize"

	"podcast-player/internal/models"
)

// ParseChannel maps a raw RSS document fetched from feedURL into a Channel.
// Missing optional fields fall back to the placeholder values in models.
func ParseChannel(feedURL string, data []byte) (models.Channel, error) {
	ch, err := parseDocument(data)
	if err != nil {
		return models.Channel{}, err
	}
	return ch.toChannel(feedURL), nil
}

func (ch *rssChannel) toChannel(feedURL string) models.Channel {
	description := orDefault(plainText(ch.Descriptions), models.NoDescription)
	channel := models.Channel{
		ID:          feedURL,
		Title:       orDefault(plainText(ch.Titles), models.UnknownChannel),
		Description: description,
		Summary:     strings.TrimSpace(sanitize.HTML(description)),
		Author:      itunesText(ch.Authors),
		ImageURL:    ch.imageURL(),
		Episodes:    make([]models.Episode, 0, len(ch.Items)),
	}

	for _, item := range ch.Items {
		channel.Episodes = append(channel.Episodes, item.toEpisode())
	}
	return channel
}

func (ch *rssChannel) imageURL() string {
	if url := itunesImage(ch.Images); url != "" {
		return url
	}
	if url := rssImage(ch.Images); url != "" {
		return url
	}
	return models.DefaultImageURL
}

func (it rssItem) toEpisode() models.Episode {
	ep := models.Episode{
		ID:          it.guid(),
		Title:       plainText(it.Titles),
		Author:      orDefault(itunesText(it.Authors), models.UnknownAuthor),
		ImageURL:    orDefault(itunesImage(it.Images), models.DefaultImageURL),
		AudioURL:    it.audioURL(),
		Description: orDefault(plainText(it.Descriptions), models.NoDescription),
		PubDate:     strings.TrimSpace(it.PubDate),
		Duration:    parseDuration(itunesText(it.Durations)),
	}
	if published, err := parsePubDate(it.PubDate); err == nil {
		ep.PublishedAt = published
	}
	return ep
}

// searchEpisode is toEpisode with the looser fallbacks search results use:
// the title doubles as ID and the channel supplies author and artwork.
func (it rssItem) searchEpisode(ch *rssChannel) models.Episode {
	ep := it.toEpisode()
	if ep.ID == "" {
		ep.ID = ep.Title
	}
	if itunesText(it.Authors) == "" {
		ep.Author = orDefault(itunesText(ch.Authors), models.UnknownAuthor)
	}
	if itunesImage(it.Images) == "" {
		ep.ImageURL = orDefault(itunesImage(ch.Images), models.DefaultImageURL)
	}
	return ep
}

func (it rssItem) matches(lowerQuery string) bool {
	title := strings.ToLower(plainText(it.Titles))
	description := strings.ToLower(plainText(it.Descriptions))
	return strings.Contains(title, lowerQuery) || strings.Contains(description, lowerQuery)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
