package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/kasuboski/bangumiz/pkg/logger"
	"go.uber.org/zap"
)

const (
	qbittorrentOK     = "Ok."
	qbittorrentCookie = "SID"
)

type QBittorrentClient struct {
	http     HTTPClient
	scheme   string
	host     string
	username string
	password string

	mutex         *sync.Mutex
	session       string
	authenticated bool
}

func NewQBittorrentClient(http HTTPClient, scheme, host string, port int, username, password string) DownloadClient {
	if port != 0 {
		host = fmt.Sprintf("%s:%d", host, port)
	}

	return &QBittorrentClient{
		http:     http,
		scheme:   scheme,
		host:     host,
		username: username,
		password: password,
		mutex:    new(sync.Mutex),
	}
}

// QBittorrentTorrent is a subset of an entry returned by /api/v2/torrents/info
type QBittorrentTorrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	Size     int64   `json:"size"`
	SavePath string  `json:"save_path"`
	Category string  `json:"category"`
	Tags     string  `json:"tags"`
	State    string  `json:"state"`
}

func (t QBittorrentTorrent) ToStatus() Status {
	return Status{
		ID:       t.Hash,
		Hash:     strings.ToLower(t.Hash),
		Name:     t.Name,
		Progress: t.Progress * 100,
		Size:     t.Size,
		SavePath: t.SavePath,
	}
}

func (c *QBittorrentClient) url(path string) *url.URL {
	return &url.URL{
		Scheme: c.scheme,
		Host:   c.host,
		Path:   path,
	}
}

// List fetches all torrents
func (c *QBittorrentClient) List(ctx context.Context) ([]Status, error) {
	b, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/v2/torrents/info").String(), nil)
	})
	if err != nil {
		return nil, err
	}

	var torrents []QBittorrentTorrent
	if err := json.Unmarshal(b, &torrents); err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(torrents))
	for _, t := range torrents {
		statuses = append(statuses, t.ToStatus())
	}

	return statuses, nil
}

// Add submits a torrent url
func (c *QBittorrentClient) Add(ctx context.Context, request AddRequest) error {
	log := logger.FromCtx(ctx)

	fields := [][2]string{
		{"urls", request.URL},
		{"savepath", request.SavePath},
		{"category", request.Category},
		{"tags", strings.Join(request.Tags, ",")},
		{"paused", strconv.FormatBool(request.Paused)},
		{"stopped", strconv.FormatBool(request.Paused)},
		{"autoTMM", strconv.FormatBool(request.AutoManagement)},
	}
	if request.ContentLayout != "" {
		fields = append(fields, [2]string{"contentLayout", string(request.ContentLayout)})
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	payload := body.Bytes()
	b, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/v2/torrents/add").String(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return err
	}

	if resp := strings.TrimSpace(string(b)); resp != qbittorrentOK {
		log.Debugw("qbittorrent rejected torrent", zap.String("url", request.URL), zap.String("response", resp))
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, resp)
	}

	return nil
}

func (c *QBittorrentClient) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/v2/auth/login").String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.url("").String())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: unexpected status code: %v", resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if strings.TrimSpace(string(b)) != qbittorrentOK {
		return errors.New("login failed: invalid credentials")
	}

	var session string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == qbittorrentCookie {
			session = cookie.Value
		}
	}

	c.setSession(session)
	return nil
}

// do sends the request built by newRequest, logging in first if needed and once more on 403
func (c *QBittorrentClient) do(ctx context.Context, newRequest func() (*http.Request, error), retry ...bool) ([]byte, error) {
	if c.http == nil {
		return nil, errors.New("http client is nil")
	}

	if !c.isAuthenticated() {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	req, err := newRequest()
	if err != nil {
		return nil, err
	}

	req.Header.Set("Referer", c.url("").String())
	if session := c.getSession(); session != "" {
		req.AddCookie(&http.Cookie{Name: qbittorrentCookie, Value: session})
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
	// the session expired or was never valid
	case http.StatusForbidden:
		if len(retry) != 0 && retry[0] {
			return nil, errors.New("forbidden after login")
		}

		c.clearSession()
		return c.do(ctx, newRequest, true)

	case http.StatusOK:
		return io.ReadAll(resp.Body)

	default:
		return nil, fmt.Errorf("unexpected status code: %v", resp.Status)
	}
}

func (c *QBittorrentClient) setSession(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.session = id
	c.authenticated = true
}

func (c *QBittorrentClient) clearSession() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.session = ""
	c.authenticated = false
}

func (c *QBittorrentClient) getSession() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.session
}

func (c *QBittorrentClient) isAuthenticated() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.authenticated
}
