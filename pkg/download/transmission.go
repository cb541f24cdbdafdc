package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/kasuboski/bangumiz/pkg/logger"
	"go.uber.org/zap"
)

type TransmissionClient struct {
	http     HTTPClient
	scheme   string
	host     string
	username string
	password string
	mutex    *sync.Mutex
	session  string
}

type TransmissionRequest struct {
	Arguments any           `json:"arguments"`
	Tag       *int          `json:"tag,omitempty"`
	Method    torrentMethod `json:"method"`
}

type torrentMethod string

const (
	AddTorrentMethod torrentMethod = "torrent-add"
	GetTorrentMethod torrentMethod = "torrent-get"

	transmissionSuccess = "success"
)

func NewTransmissionClient(http HTTPClient, scheme, host string, port int, username, password string) DownloadClient {
	if port != 0 {
		host = fmt.Sprintf("%s:%d", host, port)
	}

	return &TransmissionClient{
		http:     http,
		scheme:   scheme,
		host:     host,
		username: username,
		password: password,
		mutex:    new(sync.Mutex),
		session:  "",
	}
}

type TransmissionTorrent struct {
	Name        string  `json:"name"`
	HashString  string  `json:"hashString"`
	DownloadDir string  `json:"downloadDir"`
	PercentDone float64 `json:"percentDone"`
	ID          int     `json:"id"`
	TotalSize   int64   `json:"totalSize"`
}

func (t TransmissionTorrent) ToStatus() Status {
	return Status{
		ID:       strconv.Itoa(t.ID),
		Hash:     strings.ToLower(t.HashString),
		Name:     t.Name,
		Progress: t.PercentDone * 100,
		Size:     t.TotalSize,
		SavePath: t.DownloadDir,
	}
}

type TransmissionListTorrentsResponse struct {
	Result    string      `json:"result"`
	Arguments TorrentList `json:"arguments"`
}

func (r TransmissionListTorrentsResponse) ToStatuses() []Status {
	statuses := make([]Status, 0, len(r.Arguments.Torrents))
	for _, t := range r.Arguments.Torrents {
		statuses = append(statuses, t.ToStatus())
	}

	return statuses
}

type TorrentList struct {
	Torrents []TransmissionTorrent `json:"torrents"`
}

var torrentFields = []string{
	"id",
	"name",
	"hashString",
	"percentDone",
	"totalSize",
	"downloadDir",
}

type AddTorrentPayload struct {
	DownloadDir string   `json:"download-dir,omitempty"`
	Filename    string   `json:"filename"`
	Paused      bool     `json:"paused"`
	Labels      []string `json:"labels,omitempty"`
}

// AddTorrentResponse represents a response from a torrent-add rpc call
type AddTorrentResponse struct {
	Result    string                      `json:"result"`
	Arguments AddTorrentResponseArguments `json:"arguments"`
}

// AddTorrentResponseArguments holds either the added torrent or the one that already existed
type AddTorrentResponseArguments struct {
	TorrentAdded     *AddedTorrent `json:"torrent-added,omitempty"`
	TorrentDuplicate *AddedTorrent `json:"torrent-duplicate,omitempty"`
}

// AddedTorrent represents the details of the added torrent
type AddedTorrent struct {
	HashString string `json:"hashString"`
	Name       string `json:"name"`
	ID         int    `json:"id"`
}

// List fetches all torrents
func (c *TransmissionClient) List(ctx context.Context) ([]Status, error) {
	arguments := make(map[string]any)
	arguments["fields"] = torrentFields

	request := &TransmissionRequest{
		Method:    GetTorrentMethod,
		Arguments: arguments,
	}

	b, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	b, err = c.do(ctx, c.rpcURL(), b)
	if err != nil {
		return nil, err
	}

	var response TransmissionListTorrentsResponse
	err = json.Unmarshal(b, &response)
	if err != nil {
		return nil, err
	}

	if response.Result != transmissionSuccess {
		return nil, fmt.Errorf("unexpected result: %v", response.Result)
	}

	return response.ToStatuses(), nil
}

// Add creates a new torrent from a metainfo url
func (c *TransmissionClient) Add(ctx context.Context, request AddRequest) error {
	log := logger.FromCtx(ctx)

	labels := append([]string{}, request.Tags...)
	if request.Category != "" {
		labels = append(labels, request.Category)
	}

	transmissionRequest := &TransmissionRequest{
		Method: AddTorrentMethod,
		Arguments: AddTorrentPayload{
			DownloadDir: request.SavePath,
			Filename:    request.URL,
			Paused:      request.Paused,
			Labels:      labels,
		},
	}

	b, err := json.Marshal(transmissionRequest)
	if err != nil {
		return err
	}

	b, err = c.do(ctx, c.rpcURL(), b)
	if err != nil {
		return err
	}

	var response AddTorrentResponse
	err = json.Unmarshal(b, &response)
	if err != nil {
		return err
	}

	if response.Result != transmissionSuccess {
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, response.Result)
	}

	if response.Arguments.TorrentDuplicate != nil {
		log.Debugw("transmission already has torrent", zap.String("hash", response.Arguments.TorrentDuplicate.HashString))
	}

	return nil
}

func (c *TransmissionClient) rpcURL() *url.URL {
	return &url.URL{
		Host:   c.host,
		Scheme: c.scheme,
		Path:   "/transmission/rpc",
	}
}

const (
	sessionHeader = "x-transmission-session-id"
)

func (c *TransmissionClient) do(ctx context.Context, url *url.URL, body []byte, retry ...bool) ([]byte, error) {
	if c.http == nil {
		return nil, errors.New("http client is nil")
	}

	if url == nil {
		return nil, errors.New("url is nil")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url.String(), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, c.getSessionID())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	// need to get a new session id from the response if 409
	case http.StatusConflict:
		// a fresh session that is rejected again will not get better
		if len(retry) != 0 && retry[0] {
			return nil, errors.New("session id is invalid after retry")
		}

		session := resp.Header.Get(sessionHeader)
		if session == "" {
			return nil, errors.New("session id is empty")
		}

		c.setSessionID(session)
		return c.do(ctx, url, body, true)

	case http.StatusOK:
		return io.ReadAll(resp.Body)

	default:
		return nil, fmt.Errorf("unexpected status code: %v", resp.Status)
	}
}

func (c *TransmissionClient) setSessionID(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.session = id
}

func (c *TransmissionClient) getSessionID() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.session
}
