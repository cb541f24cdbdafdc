package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kasuboski/bangumiz/pkg/download"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/pkg/torrent"
)

type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (torrent.Descriptor, error)
}

// Selector decides which feed episodes are new and where they are saved
type Selector struct {
	fetcher MetadataFetcher
	root    string
}

// NewSelector returns a selector that saves episodes below root
func NewSelector(fetcher MetadataFetcher, root string) *Selector {
	return &Selector{
		fetcher: fetcher,
		root:    root,
	}
}

// Select returns the episodes of show that are neither excluded nor in known,
// in the order given. Episodes must be oldest first. Any fetch error is returned
// as is and no episodes are returned with it.
func (s *Selector) Select(ctx context.Context, show ShowSpec, episodes []Episode, known download.DigestSet) ([]Episode, error) {
	log := logger.FromCtx(ctx)

	var selected []Episode
	i := 0
	for _, ep := range episodes {
		log.Debugw("considering episode", "title", ep.Title)

		if show.excluded(ep.Title) {
			log.Debugw("excluding episode due to exclude patterns", "title", ep.Title)
			continue
		}

		d, err := s.fetcher.Fetch(ctx, ep.Descriptor.SourceURL)
		if err != nil {
			return nil, err
		}
		ep.Descriptor = d

		if known.Has(d.Hash()) {
			log.Debugw("episode already exists in download client", "title", ep.Title, "hash", d.Hash())
			continue
		}

		i++

		folder := fmt.Sprintf("%s - S%02dE%02d", show.Title, show.Season, i)
		if name := stem(d.DisplayName()); name != "" {
			folder = name
		}

		ep.SavePath = filepath.Join(s.root, show.Title, fmt.Sprintf("Season %d", show.Season), folder)
		ep.Season = show.Season
		ep.ShowTitle = show.Title
		ep.Category = show.Category

		size := "unknown"
		if n, ok := d.ByteSize(); ok {
			size = humanize.IBytes(uint64(n))
		}
		log.Infow("found new episode", "title", ep.Title, "size", size, "savePath", ep.SavePath)

		selected = append(selected, ep)
	}

	return selected, nil
}

// stem returns the last path element of name without its final extension.
// Names starting with a dot and names ending in a dot keep the whole element.
func stem(name string) string {
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	// not usable as a folder name
	if name == "." || name == ".." {
		return ""
	}

	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return name
	}
	return name[:i]
}
