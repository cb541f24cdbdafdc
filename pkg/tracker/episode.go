package tracker

import (
	"context"
	"regexp"
	"slices"
	"strconv"

	"github.com/kasuboski/bangumiz/config"
	"github.com/kasuboski/bangumiz/pkg/feed"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/pkg/torrent"
	"github.com/oapi-codegen/nullable"
)

// Episode is a feed entry with a transfer descriptor. ShowTitle, Season,
// Category and SavePath are zero until the episode is selected.
type Episode struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Link       string             `json:"link"`
	Descriptor torrent.Descriptor `json:"descriptor"`
	ShowTitle  string             `json:"showTitle,omitempty"`
	Season     int                `json:"season,omitempty"`
	Category   string             `json:"category,omitempty"`
	SavePath   string             `json:"savePath,omitempty"`
}

// ShowSpec is a show with its exclude patterns compiled
type ShowSpec struct {
	FeedURL  string
	Title    string
	Season   int
	Exclude  []*regexp.Regexp
	Category string
}

// ShowSpecFromConfig compiles the exclude patterns of s
func ShowSpecFromConfig(s config.Show) (ShowSpec, error) {
	exclude, err := s.CompileExcludes()
	if err != nil {
		return ShowSpec{}, err
	}

	category := s.Category
	if category == "" {
		category = config.DefaultCategory
	}

	return ShowSpec{
		FeedURL:  s.URL,
		Title:    s.Title,
		Season:   s.Season,
		Exclude:  exclude,
		Category: category,
	}, nil
}

// ShowSpecsFromConfig converts every configured show in order
func ShowSpecsFromConfig(shows []config.Show) ([]ShowSpec, error) {
	specs := make([]ShowSpec, 0, len(shows))
	for _, s := range shows {
		spec, err := ShowSpecFromConfig(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// excluded reports whether any pattern matches somewhere in title
func (s ShowSpec) excluded(title string) bool {
	for _, re := range s.Exclude {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// episodesFromEntries keeps the entries that carry a torrent enclosure and
// returns them oldest first. Feeds list their newest entry first.
func episodesFromEntries(ctx context.Context, entries []feed.Entry) []Episode {
	log := logger.FromCtx(ctx)

	episodes := make([]Episode, 0, len(entries))
	for _, e := range entries {
		enc, ok := e.Torrent()
		if !ok {
			log.Warnw("no torrent found in entry", "title", e.Title)
			continue
		}

		d := torrent.Descriptor{SourceURL: enc.Href}
		if size, err := strconv.ParseInt(enc.Length, 10, 64); err == nil && size >= 0 {
			d.Size = nullable.NewNullableWithValue(size)
		}

		episodes = append(episodes, Episode{
			ID:         e.ID,
			Title:      e.Title,
			Link:       e.Link,
			Descriptor: d,
		})
	}

	slices.Reverse(episodes)
	return episodes
}
