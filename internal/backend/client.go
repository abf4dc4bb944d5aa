// Package backend talks to the remote classification service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/models"
)

// maxResponseBytes bounds how much of a response body is decoded.
const maxResponseBytes = 32 << 20

// Options configures a Client.
type Options struct {
	BaseURL      string
	ScanTimeout  time.Duration
	QueryTimeout time.Duration
	UserAgent    string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client issues scan, query and ping requests. Every request runs under its
// own timeout so a caller waiting on it cannot hang indefinitely.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	scanTimeout  time.Duration
	queryTimeout time.Duration
	userAgent    string
	logger       *log.Logger
}

// New validates opts and returns a Client.
func New(opts Options, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	scanTimeout := opts.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = 5 * time.Minute
	}
	queryTimeout := opts.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:      u,
		http:         httpClient,
		scanTimeout:  scanTimeout,
		queryTimeout: queryTimeout,
		userAgent:    opts.UserAgent,
		logger:       logger,
	}, nil
}

// envelope is the {"success": ...} / {"error": "..."} wrapper used by every
// backend response.
type envelope[T any] struct {
	Success *T      `json:"success"`
	Error   *string `json:"error"`
}

type wirePrediction struct {
	Det   string  `json:"det"`
	Proba float64 `json:"proba"`
}

type wireResult struct {
	SHA256     string         `json:"sha256"`
	Prediction wirePrediction `json:"prediction"`
}

func (w wireResult) toModel() (models.BackendResult, error) {
	d, err := models.ParseDigest(strings.ToLower(w.SHA256))
	if err != nil {
		return models.BackendResult{}, err
	}
	return models.BackendResult{
		Digest:     d,
		Prediction: models.NewPrediction(w.Prediction.Det, w.Prediction.Proba),
	}, nil
}

// Scan submits files as one multipart batch, one part per file named after
// it, and returns the verdicts in whatever order the backend chose.
func (c *Client) Scan(ctx context.Context, files []models.SelectedFile) ([]models.BackendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()
	defer pr.Close()

	req, err := c.newRequest(ctx, http.MethodPost, "/scan", pr)
	if err != nil {
		return nil, &models.TransportError{Op: "scan", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: "scan", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Infof("POST /scan %d files -> %d in %s", len(files), resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransportError{Op: "scan", Status: resp.StatusCode}
	}

	var env envelope[[]wireResult]
	if err := decode(resp.Body, &env); err != nil {
		return nil, &models.TransportError{Op: "scan", Err: err}
	}
	if env.Error != nil {
		return nil, &models.BackendError{Message: *env.Error}
	}
	if env.Success == nil {
		return nil, &models.TransportError{Op: "scan", Err: errors.New("response has neither success nor error")}
	}

	results := make([]models.BackendResult, 0, len(*env.Success))
	for _, w := range *env.Success {
		r, err := w.toModel()
		if err != nil {
			return nil, &models.TransportError{Op: "scan", Err: fmt.Errorf("malformed digest in response: %w", err)}
		}
		results = append(results, r)
	}
	return results, nil
}

func writeParts(mw *multipart.Writer, files []models.SelectedFile) error {
	for _, f := range files {
		part, err := mw.CreateFormFile(f.Name, f.Name)
		if err != nil {
			return err
		}
		if err := copyFile(part, f); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return mw.Close()
}

func copyFile(w io.Writer, f models.SelectedFile) error {
	if f.Open == nil {
		return errors.New("no content")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

// Query fetches the stored verdict for d. A 404 yields ErrDigestNotFound.
func (c *Client) Query(ctx context.Context, d models.Digest) (models.BackendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/query/"+string(d), nil)
	if err != nil {
		return models.BackendResult{}, &models.TransportError{Op: "query", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.BackendResult{}, &models.TransportError{Op: "query", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Infof("GET /query/%s -> %d", d.Short(), resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return models.BackendResult{}, fmt.Errorf("%s: %w", d, models.ErrDigestNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.BackendResult{}, &models.TransportError{Op: "query", Status: resp.StatusCode}
	}

	var env envelope[wireResult]
	if err := decode(resp.Body, &env); err != nil {
		return models.BackendResult{}, &models.TransportError{Op: "query", Err: err}
	}
	if env.Error != nil {
		return models.BackendResult{}, &models.BackendError{Message: *env.Error}
	}
	if env.Success == nil {
		return models.BackendResult{}, &models.TransportError{Op: "query", Err: errors.New("response has neither success nor error")}
	}

	r, err := env.Success.toModel()
	if err != nil {
		return models.BackendResult{}, &models.TransportError{Op: "query", Err: fmt.Errorf("malformed digest in response: %w", err)}
	}
	return r, nil
}

// Ping checks that the backend root answers 200.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return &models.TransportError{Op: "ping", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &models.TransportError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return &models.TransportError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func decode(r io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
