// fake_backend.go - In-process classification service for tests
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/apk-scanner/client/internal/models"
)

// Verdict is what the fake backend answers for one digest.
type Verdict struct {
	Det   string
	Proba float64
}

// FakeBackend mimics POST /scan, GET /query/:hash and GET / of the
// classification service.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	verdicts map[models.Digest]Verdict
	scanError  string
	scanStatus int
	scanDelays []time.Duration
	reverse    bool
	partNames  []string

	ScanCalls  atomic.Int32
	QueryCalls atomic.Int32
}

// NewFakeBackend starts a fake backend; callers must Close it.
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{verdicts: make(map[models.Digest]Verdict)}

	e := echo.New()
	e.HideBanner = true
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/scan", f.handleScan)
	e.GET("/query/:hash", f.handleQuery)

	f.Server = httptest.NewServer(e)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeBackend) URL() string {
	return f.Server.URL
}

// Close shuts the server down.
func (f *FakeBackend) Close() {
	f.Server.Close()
}

// SetVerdict registers the verdict for content.
func (f *FakeBackend) SetVerdict(content []byte, det string, proba float64) models.Digest {
	d := models.DigestOf(content)
	f.SetDigestVerdict(d, det, proba)
	return d
}

// SetDigestVerdict registers the verdict for d.
func (f *FakeBackend) SetDigestVerdict(d models.Digest, det string, proba float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[d] = Verdict{Det: det, Proba: proba}
}

// FailScans makes /scan answer with a backend-reported error.
func (f *FakeBackend) FailScans(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanError = msg
}

// SetScanStatus forces the /scan status code.
func (f *FakeBackend) SetScanStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanStatus = status
}

// DelayScans queues per-call delays: the n-th /scan call sleeps delays[n].
func (f *FakeBackend) DelayScans(delays ...time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanDelays = delays
}

// ReverseOrder makes /scan return results in reverse order.
func (f *FakeBackend) ReverseOrder() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverse = true
}

type wireResult struct {
	SHA256     string         `json:"sha256"`
	Prediction wirePrediction `json:"prediction"`
}

type wirePrediction struct {
	Det   string  `json:"det"`
	Proba float64 `json:"proba"`
}

func (f *FakeBackend) handleScan(c echo.Context) error {
	call := int(f.ScanCalls.Add(1)) - 1

	f.mu.Lock()
	var delay time.Duration
	if call < len(f.scanDelays) {
		delay = f.scanDelays[call]
	}
	scanError, scanStatus, reverse := f.scanError, f.scanStatus, f.reverse
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if scanStatus != 0 {
		return c.JSON(scanStatus, map[string]string{"error": "forced status"})
	}

	reader, err := c.Request().MultipartReader()
	if err != nil {
		return c.JSON(http.StatusOK, map[string]string{"error": err.Error()})
	}

	var names []string
	var results []wireResult
	seen := make(map[models.Digest]bool)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.JSON(http.StatusOK, map[string]string{"error": err.Error()})
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return c.JSON(http.StatusOK, map[string]string{"error": err.Error()})
		}
		names = append(names, part.FormName())

		d := models.DigestOf(data)
		f.mu.Lock()
		v, ok := f.verdicts[d]
		f.mu.Unlock()
		// Like the real service, content without a verdict is skipped.
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		results = append(results, wireResult{SHA256: string(d), Prediction: wirePrediction{Det: v.Det, Proba: v.Proba}})
	}

	f.mu.Lock()
	f.partNames = names
	f.mu.Unlock()

	if scanError != "" {
		return c.JSON(http.StatusOK, map[string]string{"error": scanError})
	}
	if reverse {
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
	}
	if results == nil {
		results = []wireResult{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": results})
}

func (f *FakeBackend) handleQuery(c echo.Context) error {
	f.QueryCalls.Add(1)
	d := models.Digest(c.Param("hash"))

	f.mu.Lock()
	v, ok := f.verdicts[d]
	f.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": wireResult{SHA256: string(d), Prediction: wirePrediction{Det: v.Det, Proba: v.Proba}},
	})
}

// Names returns the part names recorded by the last /scan call.
func (f *FakeBackend) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.partNames...)
}
