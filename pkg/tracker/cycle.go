package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuboski/bangumiz/pkg/download"
	"github.com/kasuboski/bangumiz/pkg/feed"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"go.uber.org/zap"
)

type FeedSource interface {
	Entries(ctx context.Context, url string) ([]feed.Entry, error)
}

// Report summarizes a single poll cycle
type Report struct {
	CycleID      string    `json:"cycleId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	KnownDigests int       `json:"knownDigests"`
	Selected     []Episode `json:"selected"`
	Submitted    int       `json:"submitted"`
	SubmitErrors []string  `json:"submitErrors,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type Tracker struct {
	feeds    FeedSource
	client   download.DownloadClient
	selector *Selector
	shows    []ShowSpec

	mutex *sync.Mutex
	last  *Report
}

// New returns a tracker for shows that submits new episodes to client
func New(feeds FeedSource, fetcher MetadataFetcher, client download.DownloadClient, root string, shows []ShowSpec) *Tracker {
	return &Tracker{
		feeds:    feeds,
		client:   client,
		selector: NewSelector(fetcher, root),
		shows:    shows,
		mutex:    new(sync.Mutex),
	}
}

// Plan reads the known digests and selects the new episodes of every show
// without submitting them
func (t *Tracker) Plan(ctx context.Context) (download.DigestSet, []Episode, error) {
	log := logger.FromCtx(ctx)

	known, err := download.KnownDigests(ctx, t.client)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list known torrents: %w", err)
	}
	log.Infow("fetched existing torrents from download client", "count", len(known))

	var selected []Episode
	for _, show := range t.shows {
		showCtx := logger.WithCtx(ctx, log.With("show", show.Title))

		entries, err := t.feeds.Entries(showCtx, show.FeedURL)
		if err != nil {
			return known, nil, fmt.Errorf("failed to fetch feed for %q: %w", show.Title, err)
		}

		episodes, err := t.selector.Select(showCtx, show, episodesFromEntries(showCtx, entries), known)
		if err != nil {
			return known, nil, fmt.Errorf("failed to select episodes for %q: %w", show.Title, err)
		}

		selected = append(selected, episodes...)
	}

	return known, selected, nil
}

// RunCycle selects new episodes and submits all of them. A selection error
// stops the cycle before anything is submitted. Submission errors are
// collected and returned together.
func (t *Tracker) RunCycle(ctx context.Context) (Report, error) {
	cycleID := uuid.New().String()
	log := logger.FromCtx(ctx).With("cycle", cycleID)
	ctx = logger.WithCtx(ctx, log)

	report := Report{
		CycleID:   cycleID,
		StartedAt: time.Now(),
	}

	known, selected, err := t.Plan(ctx)
	report.KnownDigests = len(known)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		t.setLastReport(report)
		return report, err
	}
	report.Selected = selected

	if len(selected) == 0 {
		log.Warn("no new episodes found")
	}

	var errs []error
	for _, ep := range selected {
		err := t.client.Add(ctx, AddRequestFor(ep))
		if err != nil {
			log.Errorw("failed to add torrent for episode", zap.String("title", ep.Title), zap.Error(err))
			err = fmt.Errorf("%q: %w", ep.Title, err)
			errs = append(errs, err)
			report.SubmitErrors = append(report.SubmitErrors, err.Error())
			continue
		}

		report.Submitted++
		log.Infow("sent torrent for episode", "title", ep.Title)
	}

	err = errors.Join(errs...)
	if err != nil {
		report.Error = err.Error()
	}
	report.FinishedAt = time.Now()
	t.setLastReport(report)

	return report, err
}

// AddRequestFor builds the submission for a selected episode
func AddRequestFor(ep Episode) download.AddRequest {
	return download.AddRequest{
		URL:      ep.Descriptor.SourceURL,
		SavePath: ep.SavePath,
		Category: ep.Category,
		Tags: []string{
			fmt.Sprintf("FILTER:s==%d", ep.Season),
			fmt.Sprintf("NAME:%s", ep.ShowTitle),
			"DIRECT:true",
		},
		Paused:         false,
		AutoManagement: false,
		ContentLayout:  download.ContentLayoutNoSubfolder,
	}
}

// Run runs cycles until ctx is done, waiting interval after each one finishes
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	log := logger.FromCtx(ctx)

	for {
		if _, err := t.RunCycle(ctx); err != nil {
			log.Errorw("cycle failed", zap.Error(err))
		}

		if ctx.Err() != nil {
			log.Info("tracker stopped")
			return nil
		}

		log.Infow("sleeping", "interval", interval.String())

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("tracker stopped")
			return nil
		case <-timer.C:
		}
	}
}

// LastReport returns the report of the most recent cycle
func (t *Tracker) LastReport() (Report, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.last == nil {
		return Report{}, false
	}
	return *t.last, true
}

func (t *Tracker) setLastReport(r Report) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.last = &r
}
