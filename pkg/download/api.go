package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kasuboski/bangumiz/config"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type DownloadClient interface {
	Add(ctx context.Context, request AddRequest) error
	List(ctx context.Context) ([]Status, error)
}

type Factory interface {
	NewDownloadClient(config config.Client) (DownloadClient, error)
}

type DownloadClientFactory struct {
	http HTTPClient
}

// NewDownloadClientFactory returns a factory whose clients send requests with http.
// A nil client uses http.DefaultClient.
func NewDownloadClientFactory(client HTTPClient) Factory {
	if client == nil {
		client = http.DefaultClient
	}
	return DownloadClientFactory{http: client}
}

// NewDownloadClient returns a download client for the given configuration
func (f DownloadClientFactory) NewDownloadClient(config config.Client) (DownloadClient, error) {
	switch config.Implementation {
	case "qbittorrent":
		return NewQBittorrentClient(f.http, config.Scheme, config.Host, config.Port, config.Username, config.Password), nil
	case "transmission":
		return NewTransmissionClient(f.http, config.Scheme, config.Host, config.Port, config.Username, config.Password), nil
	default:
		return nil, fmt.Errorf("unsupported client implementation: %v", config.Implementation)
	}
}

// ContentLayout controls how a client lays out the files of a multi file torrent
type ContentLayout string

const (
	ContentLayoutOriginal    ContentLayout = "Original"
	ContentLayoutSubfolder   ContentLayout = "Subfolder"
	ContentLayoutNoSubfolder ContentLayout = "NoSubfolder"
)

// AddRequest submits the metainfo at URL to be saved under SavePath
type AddRequest struct {
	URL            string
	SavePath       string
	Category       string
	Tags           []string
	Paused         bool
	AutoManagement bool
	ContentLayout  ContentLayout
}

type Status struct {
	ID       string  `json:"id"`
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Progress float64 `json:"progress"` // percentage
	Size     int64   `json:"size"`     // bytes
	SavePath string  `json:"savePath"`
}

// ErrNotAcknowledged is returned when a client does not confirm an added torrent
var ErrNotAcknowledged = errors.New("add not acknowledged")

// DigestSet holds lowercase hex info hashes
type DigestSet map[string]struct{}

// NewDigestSet returns a set of the given hashes
func NewDigestSet(hashes ...string) DigestSet {
	s := make(DigestSet, len(hashes))
	for _, h := range hashes {
		s.Add(h)
	}
	return s
}

func (s DigestSet) Add(hash string) {
	if hash == "" {
		return
	}
	s[strings.ToLower(hash)] = struct{}{}
}

func (s DigestSet) Has(hash string) bool {
	_, ok := s[strings.ToLower(hash)]
	return ok
}

// KnownDigests lists every torrent the client has and returns their info hashes
func KnownDigests(ctx context.Context, client DownloadClient) (DigestSet, error) {
	statuses, err := client.List(ctx)
	if err != nil {
		return nil, err
	}

	s := make(DigestSet, len(statuses))
	for _, st := range statuses {
		s.Add(st.Hash)
	}

	return s, nil
}
