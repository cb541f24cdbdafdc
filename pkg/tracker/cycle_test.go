package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kasuboski/bangumiz/pkg/download"
	downloadMocks "github.com/kasuboski/bangumiz/pkg/download/mocks"
	"github.com/kasuboski/bangumiz/pkg/feed"
	"github.com/kasuboski/bangumiz/pkg/torrent"
	"github.com/kasuboski/bangumiz/pkg/tracker/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func torrentEntry(id, href string) feed.Entry {
	return feed.Entry{
		ID:         id,
		Title:      id,
		Enclosures: []feed.Enclosure{{Type: feed.TorrentType, Href: href}},
	}
}

type cycleMocks struct {
	feeds   *mocks.MockFeedSource
	fetcher *mocks.MockMetadataFetcher
	client  *downloadMocks.MockDownloadClient
}

func newTestTracker(t *testing.T, shows ...ShowSpec) (*Tracker, cycleMocks) {
	ctrl := gomock.NewController(t)
	m := cycleMocks{
		feeds:   mocks.NewMockFeedSource(ctrl),
		fetcher: mocks.NewMockMetadataFetcher(ctrl),
		client:  downloadMocks.NewMockDownloadClient(ctrl),
	}
	return New(m.feeds, m.fetcher, m.client, "/media", shows), m
}

func TestTracker_RunCycle(t *testing.T) {
	first := ShowSpec{FeedURL: "http://example.com/first", Title: "First", Season: 1, Category: "anime"}
	second := ShowSpec{FeedURL: "http://example.com/second", Title: "Second", Season: 2, Category: "tv"}

	t.Run("submits new episodes in config order", func(t *testing.T) {
		tr, m := newTestTracker(t, first, second)

		m.client.EXPECT().List(gomock.Any()).Return([]download.Status{{Hash: "known"}}, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), first.FeedURL).Return([]feed.Entry{
			torrentEntry("first-02", "http://example.com/f2.torrent"),
			torrentEntry("first-01", "http://example.com/f1.torrent"),
		}, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), second.FeedURL).Return([]feed.Entry{
			torrentEntry("second-01", "http://example.com/s1.torrent"),
		}, nil)

		m.fetcher.EXPECT().Fetch(gomock.Any(), "http://example.com/f1.torrent").Return(descriptor("http://example.com/f1.torrent", "known", ""), nil)
		m.fetcher.EXPECT().Fetch(gomock.Any(), "http://example.com/f2.torrent").Return(descriptor("http://example.com/f2.torrent", "f2", ""), nil)
		m.fetcher.EXPECT().Fetch(gomock.Any(), "http://example.com/s1.torrent").Return(descriptor("http://example.com/s1.torrent", "s1", "Second 01.mkv"), nil)

		gomock.InOrder(
			m.client.EXPECT().Add(gomock.Any(), download.AddRequest{
				URL:           "http://example.com/f2.torrent",
				SavePath:      filepath.Join("/media", "First", "Season 1", "First - S01E01"),
				Category:      "anime",
				Tags:          []string{"FILTER:s==1", "NAME:First", "DIRECT:true"},
				ContentLayout: download.ContentLayoutNoSubfolder,
			}).Return(nil),
			m.client.EXPECT().Add(gomock.Any(), download.AddRequest{
				URL:           "http://example.com/s1.torrent",
				SavePath:      filepath.Join("/media", "Second", "Season 2", "Second 01"),
				Category:      "tv",
				Tags:          []string{"FILTER:s==2", "NAME:Second", "DIRECT:true"},
				ContentLayout: download.ContentLayoutNoSubfolder,
			}).Return(nil),
		)

		report, err := tr.RunCycle(context.Background())
		require.NoError(t, err)

		assert.NotEmpty(t, report.CycleID)
		assert.Equal(t, 1, report.KnownDigests)
		assert.Equal(t, 2, report.Submitted)
		require.Len(t, report.Selected, 2)
		assert.Equal(t, "first-02", report.Selected[0].ID)
		assert.Equal(t, "second-01", report.Selected[1].ID)
		assert.Empty(t, report.Error)
		assert.False(t, report.FinishedAt.Before(report.StartedAt))

		last, ok := tr.LastReport()
		require.True(t, ok)
		assert.Equal(t, report.CycleID, last.CycleID)
	})

	t.Run("selection error prevents every submission", func(t *testing.T) {
		tr, m := newTestTracker(t, first, second)

		timeout := &torrent.NetworkError{URL: "http://example.com/s1.torrent", Timeout: true, Err: context.DeadlineExceeded}

		m.client.EXPECT().List(gomock.Any()).Return(nil, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), first.FeedURL).Return([]feed.Entry{torrentEntry("first-01", "http://example.com/f1.torrent")}, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), second.FeedURL).Return([]feed.Entry{torrentEntry("second-01", "http://example.com/s1.torrent")}, nil)
		m.fetcher.EXPECT().Fetch(gomock.Any(), "http://example.com/f1.torrent").Return(descriptor("", "f1", ""), nil)
		m.fetcher.EXPECT().Fetch(gomock.Any(), "http://example.com/s1.torrent").Return(torrent.Descriptor{}, timeout)
		m.client.EXPECT().Add(gomock.Any(), gomock.Any()).Times(0)

		report, err := tr.RunCycle(context.Background())
		assert.True(t, torrent.IsTimeout(err))
		assert.Contains(t, err.Error(), `"Second"`)
		assert.Empty(t, report.Selected)
		assert.Equal(t, 0, report.Submitted)
		assert.NotEmpty(t, report.Error)
	})

	t.Run("list error aborts the cycle", func(t *testing.T) {
		tr, m := newTestTracker(t, first)

		m.client.EXPECT().List(gomock.Any()).Return(nil, errors.New("connection refused"))

		_, err := tr.RunCycle(context.Background())
		assert.ErrorContains(t, err, "failed to list known torrents")
	})

	t.Run("feed error aborts the cycle", func(t *testing.T) {
		tr, m := newTestTracker(t, first, second)

		m.client.EXPECT().List(gomock.Any()).Return(nil, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), first.FeedURL).Return(nil, errors.New("unexpected status code: 500"))

		_, err := tr.RunCycle(context.Background())
		assert.ErrorContains(t, err, "failed to fetch feed")
	})

	t.Run("submits all and collects errors", func(t *testing.T) {
		tr, m := newTestTracker(t, first)

		m.client.EXPECT().List(gomock.Any()).Return(nil, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), first.FeedURL).Return([]feed.Entry{
			torrentEntry("first-03", "http://example.com/f3.torrent"),
			torrentEntry("first-02", "http://example.com/f2.torrent"),
			torrentEntry("first-01", "http://example.com/f1.torrent"),
		}, nil)
		m.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, url string) (torrent.Descriptor, error) {
			return descriptor(url, url, ""), nil
		}).Times(3)

		rejected := errors.New("rejected")
		gomock.InOrder(
			m.client.EXPECT().Add(gomock.Any(), gomock.Any()).Return(download.ErrNotAcknowledged),
			m.client.EXPECT().Add(gomock.Any(), gomock.Any()).Return(nil),
			m.client.EXPECT().Add(gomock.Any(), gomock.Any()).Return(rejected),
		)

		report, err := tr.RunCycle(context.Background())
		assert.ErrorIs(t, err, download.ErrNotAcknowledged)
		assert.ErrorIs(t, err, rejected)
		assert.Equal(t, 1, report.Submitted)
		assert.Len(t, report.SubmitErrors, 2)
		assert.Contains(t, report.SubmitErrors[0], "first-01")
		assert.Contains(t, report.SubmitErrors[1], "first-03")
	})

	t.Run("nothing new", func(t *testing.T) {
		tr, m := newTestTracker(t, first)

		m.client.EXPECT().List(gomock.Any()).Return(nil, nil)
		m.feeds.EXPECT().Entries(gomock.Any(), first.FeedURL).Return(nil, nil)

		report, err := tr.RunCycle(context.Background())
		assert.NoError(t, err)
		assert.Empty(t, report.Selected)
	})
}

func TestTracker_LastReport(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, ok := tr.LastReport()
	assert.False(t, ok)
}

func TestTracker_Run(t *testing.T) {
	show := ShowSpec{FeedURL: "http://example.com/first", Title: "First", Season: 1}
	tr, m := newTestTracker(t, show)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.client.EXPECT().List(gomock.Any()).Return(nil, errors.New("down"))
	m.client.EXPECT().List(gomock.Any()).DoAndReturn(func(context.Context) ([]download.Status, error) {
		cancel()
		return nil, nil
	})
	m.feeds.EXPECT().Entries(gomock.Any(), show.FeedURL).Return(nil, nil)

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, time.Millisecond) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not stop")
	}

	last, ok := tr.LastReport()
	require.True(t, ok)
	assert.Empty(t, last.Error)
}

func TestAddRequestFor(t *testing.T) {
	got := AddRequestFor(Episode{
		Descriptor: torrent.Descriptor{SourceURL: "http://example.com/a.torrent"},
		ShowTitle:  "Show",
		Season:     3,
		Category:   "anime",
		SavePath:   "/media/Show/Season 3/Show - S03E01",
	})

	assert.Equal(t, download.AddRequest{
		URL:            "http://example.com/a.torrent",
		SavePath:       "/media/Show/Season 3/Show - S03E01",
		Category:       "anime",
		Tags:           []string{"FILTER:s==3", "NAME:Show", "DIRECT:true"},
		Paused:         false,
		AutoManagement: false,
		ContentLayout:  download.ContentLayoutNoSubfolder,
	}, got)
}
