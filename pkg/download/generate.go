package download

//go:generate mockgen -package mocks -destination mocks/mock_download_client.go github.com/kasuboski/bangumiz/pkg/download DownloadClient,Factory
