package feed

import (
	"context"
	"fmt"
	"net/http"

	mhttp "github.com/kasuboski/bangumiz/pkg/http"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/mmcdole/gofeed"
)

// TorrentType is the enclosure mime type of a torrent metainfo file
const TorrentType = "application/x-bittorrent"

// Entry is a single item of a subscription feed
type Entry struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Link       string      `json:"link"`
	Enclosures []Enclosure `json:"enclosures"`
}

// Enclosure is a file attached to an entry. Length is the raw declared length.
type Enclosure struct {
	Type   string `json:"type"`
	Href   string `json:"href"`
	Length string `json:"length"`
}

// Torrent returns the first enclosure with the torrent mime type
func (e Entry) Torrent() (Enclosure, bool) {
	for _, enc := range e.Enclosures {
		if enc.Type == TorrentType {
			return enc, true
		}
	}
	return Enclosure{}, false
}

// Fetcher reads RSS and Atom feeds
type Fetcher struct {
	http   mhttp.HTTPClient
	parser *gofeed.Parser
}

// New creates a feed Fetcher. A nil client uses http.DefaultClient.
func New(client mhttp.HTTPClient) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		http:   client,
		parser: gofeed.NewParser(),
	}
}

// Entries fetches url and returns its entries in feed order
func (f *Fetcher) Entries(ctx context.Context, url string) ([]Entry, error) {
	log := logger.FromCtx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch feed %s: unexpected status code: %v", url, resp.Status)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, toEntry(item))
	}

	log.Infow("fetched feed entries", "url", url, "count", len(entries))
	return entries, nil
}

func toEntry(item *gofeed.Item) Entry {
	e := Entry{
		ID:    item.GUID,
		Title: item.Title,
		Link:  item.Link,
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		e.Enclosures = append(e.Enclosures, Enclosure{
			Type:   enc.Type,
			Href:   enc.URL,
			Length: enc.Length,
		})
	}

	return e
}
