package cmd

import (
	"github.com/kasuboski/bangumiz/config"
	"github.com/kasuboski/bangumiz/pkg/download"
	"github.com/kasuboski/bangumiz/pkg/feed"
	mhttp "github.com/kasuboski/bangumiz/pkg/http"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/pkg/torrent"
	"github.com/kasuboski/bangumiz/pkg/tracker"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// loadConfig reads the configuration and configures the process logger from it
func loadConfig() (config.Config, *zap.SugaredLogger) {
	cfg, err := config.New(viper.GetViper())
	if err != nil {
		_ = logger.Configure(logger.Options{Debug: debug})
		logger.Get().Fatalw("failed to read configurations", zap.Error(err))
	}

	err = logger.Configure(logger.Options{Debug: debug, Dir: cfg.Settings.LogDir})
	if err != nil {
		logger.Get().Fatalw("failed to configure logger", zap.Error(err))
	}

	log := logger.Get()
	log.Debugw("using configuration file", "path", viper.ConfigFileUsed())
	return cfg, log
}

// newTracker wires feeds, metainfo fetches and the download client for cfg
func newTracker(cfg config.Config) (*tracker.Tracker, error) {
	shows, err := tracker.ShowSpecsFromConfig(cfg.Shows)
	if err != nil {
		return nil, err
	}

	root, err := config.ExpandPath(cfg.Client.SavePathRoot)
	if err != nil {
		return nil, err
	}

	httpClient := mhttp.NewRetryClient()

	client, err := download.NewDownloadClientFactory(nil).NewDownloadClient(cfg.Client)
	if err != nil {
		return nil, err
	}

	fetcher := torrent.NewFetcher(
		torrent.WithHTTPClient(httpClient),
		torrent.WithTimeout(cfg.Settings.FetchTimeout),
	)

	return tracker.New(feed.New(httpClient), fetcher, client, root, shows), nil
}
