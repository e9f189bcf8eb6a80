package adclip

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Clip describes the local audio clip interleaved into playback during silence.
type Clip struct {
	Path      string        `json:"path"`
	Title     string        `json:"title"`
	Artist    string        `json:"artist,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	SizeBytes int64         `json:"size_bytes"`
}

// Load inspects the clip at path. Tag and duration lookups are best-effort;
// only a missing or unreadable file is an error.
func Load(path string) (Clip, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Clip{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Clip{}, err
	}
	if info.IsDir() {
		return Clip{}, errors.New("ad clip path is a directory")
	}

	title, artist := readTags(abs)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	clip := Clip{
		Path:      abs,
		Title:     title,
		Artist:    artist,
		SizeBytes: info.Size(),
	}

	if strings.EqualFold(filepath.Ext(abs), ".mp3") {
		if dur, err := mp3Duration(abs); err == nil && dur > 0 {
			clip.Duration = dur
		}
	}
	return clip, nil
}

func readTags(path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist())
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total time.Duration

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}
	return total, nil
}
