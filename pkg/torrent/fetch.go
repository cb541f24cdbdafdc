package torrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	mhttp "github.com/kasuboski/bangumiz/pkg/http"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout = time.Second * 10

	// maxMetainfoSize bounds how much of a response body is read as metainfo
	maxMetainfoSize = 32 << 20
)

// ErrMetainfoTooLarge is returned when a download exceeds the metainfo size limit
var ErrMetainfoTooLarge = errors.New("metainfo too large")

// NetworkError is returned when metainfo could not be downloaded
type NetworkError struct {
	URL        string
	Timeout    bool
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("timed out fetching %s: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching %s: unexpected status code %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a NetworkError caused by a timeout
func IsTimeout(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Timeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Fetcher downloads metainfo and extracts its descriptor
type Fetcher struct {
	http    mhttp.HTTPClient
	timeout time.Duration
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for downloads
func WithHTTPClient(client mhttp.HTTPClient) FetcherOption {
	return func(f *Fetcher) {
		f.http = client
	}
}

// WithTimeout sets the per fetch timeout. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// NewFetcher creates a Fetcher with a 10 second timeout
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		http:    http.DefaultClient,
		timeout: DefaultFetchTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads the metainfo at url and extracts its descriptor
func (f *Fetcher) Fetch(ctx context.Context, url string) (Descriptor, error) {
	log := logger.FromCtx(ctx)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Descriptor{}, &NetworkError{URL: url, Err: err}
	}

	resp, err := f.http.Do(req)
	if err != nil {
		netErr := &NetworkError{URL: url, Timeout: isTimeout(err), Err: err}
		// a retrying client hands back the last response when it gives up
		if resp != nil {
			resp.Body.Close()
			netErr.StatusCode = resp.StatusCode
		}
		if netErr.Timeout {
			log.Errorw("metainfo fetch timed out", "url", url, "timeout", f.timeout)
		} else {
			log.Errorw("metainfo fetch failed", zap.String("url", url), zap.Error(err))
		}
		return Descriptor{}, netErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Descriptor{}, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxMetainfoSize+1))
	if err != nil {
		return Descriptor{}, &NetworkError{URL: url, Timeout: isTimeout(err), Err: err}
	}
	if len(b) > maxMetainfoSize {
		return Descriptor{}, fmt.Errorf("%w: %s is larger than %s", ErrMetainfoTooLarge, url, humanize.IBytes(maxMetainfoSize))
	}

	return Extract(url, b)
}

// ReadFile extracts the descriptor of a metainfo file on fs
func ReadFile(fs afero.Fs, path string) (Descriptor, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return Descriptor{}, err
	}

	return Extract(path, b)
}
