package tracker

//go:generate mockgen -package mocks -destination mocks/mock_tracker.go github.com/kasuboski/bangumiz/pkg/tracker FeedSource,MetadataFetcher
