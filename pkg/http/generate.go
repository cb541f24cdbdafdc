package http

//go:generate mockgen -package mocks -destination mocks/http.go github.com/kasuboski/bangumiz/pkg/http HTTPClient
