package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-scanner/client/internal/backend"
	"github.com/apk-scanner/client/internal/hasher"
	"github.com/apk-scanner/client/internal/logging"
	"github.com/apk-scanner/client/internal/lookup"
	"github.com/apk-scanner/client/internal/models"
	"github.com/apk-scanner/client/internal/testutil"
	"github.com/apk-scanner/client/internal/upload"
)

// gatedUploader blocks each Run until the gate named after the first
// selected file is released.
type gatedUploader struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	batch func(files []models.SelectedFile) *upload.Batch
}

func (g *gatedUploader) gate(name string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	ch, ok := g.gates[name]
	if !ok {
		ch = make(chan struct{})
		g.gates[name] = ch
	}
	return ch
}

func (g *gatedUploader) Run(ctx context.Context, files []models.SelectedFile) (*upload.Batch, error) {
	<-g.gate(files[0].Name)
	return g.batch(files), nil
}

func (g *gatedUploader) release(name string) {
	close(g.gate(name))
}

type noLookup struct{}

func (noLookup) Lookup(ctx context.Context, raw string) ([]models.DisplayRecord, error) {
	return nil, errors.New("unused")
}

func batchOf(files []models.SelectedFile) *upload.Batch {
	var entries []hasher.Entry
	var results []models.BackendResult
	for _, f := range files {
		d := models.DigestOf([]byte(f.Name))
		entries = append(entries, hasher.Entry{Name: f.Name, Digest: d})
		results = append(results, models.BackendResult{Digest: d, Prediction: models.NewPrediction("benign", 0.5)})
	}
	return &upload.Batch{Index: hasher.BuildIndex(entries), Results: results}
}

func waitFor(t *testing.T, m *Manager, tk Ticket) models.ScanSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := m.Wait(ctx, tk.Generation)
	require.NoError(t, err)
	return s
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(nil, nil, logging.Discard())
	s := m.Snapshot()
	assert.Equal(t, models.PhaseIdle, s.Phase)
	assert.Empty(t, s.Records)
	assert.Empty(t, s.ErrorMessage)
}

func TestManager_BeginClearsPriorState(t *testing.T) {
	m := NewManager(nil, nil, logging.Discard())

	t1 := m.Begin(models.SessionKindUpload)
	require.True(t, m.Fail(t1, models.ErrEmptySelection))
	assert.Equal(t, models.PhaseError, m.Snapshot().Phase)

	t2 := m.Begin(models.SessionKindLookup)
	s := m.Snapshot()
	assert.Equal(t, models.PhaseLoading, s.Phase)
	assert.Empty(t, s.ErrorMessage)
	assert.Empty(t, s.Records)
	assert.Equal(t, t2.Generation, s.Generation)
	assert.Greater(t, t2.Generation, t1.Generation)
}

func TestManager_StaleResolutionDropped(t *testing.T) {
	m := NewManager(nil, nil, logging.Discard())

	old := m.Begin(models.SessionKindUpload)
	current := m.Begin(models.SessionKindUpload)

	assert.False(t, m.Succeed(old, Outcome{Records: []models.DisplayRecord{{Filename: "old.apk"}}}))
	assert.False(t, m.Fail(old, errors.New("late failure")))
	assert.Equal(t, models.PhaseLoading, m.Snapshot().Phase)

	assert.True(t, m.Succeed(current, Outcome{}))
	s := m.Snapshot()
	assert.Equal(t, models.PhaseSuccess, s.Phase)
	assert.Empty(t, s.Records, "an empty result list is a valid success")

	assert.False(t, m.Fail(current, errors.New("second resolution")), "an attempt resolves once")
	assert.Equal(t, models.PhaseSuccess, m.Snapshot().Phase)
}

func TestManager_SecondUploadWinsRegardlessOfArrival(t *testing.T) {
	up := &gatedUploader{batch: batchOf}
	m := NewManager(up, noLookup{}, logging.Discard())

	first := m.StartUpload([]models.SelectedFile{models.FileFromBytes("first.apk", nil)})
	second := m.StartUpload([]models.SelectedFile{models.FileFromBytes("second.apk", nil)})

	// The second request finishes before the first one.
	up.release("second.apk")
	s := waitFor(t, m, second)
	require.Equal(t, models.PhaseSuccess, s.Phase)
	require.Len(t, s.Records, 1)
	assert.Equal(t, "second.apk", s.Records[0].Filename)

	up.release("first.apk")
	waitFor(t, m, first)
	time.Sleep(20 * time.Millisecond)

	s = m.Snapshot()
	assert.Equal(t, second.Generation, s.Generation)
	require.Len(t, s.Records, 1)
	assert.Equal(t, "second.apk", s.Records[0].Filename)
}

func TestManager_FirstArrivingLateIsIgnored(t *testing.T) {
	up := &gatedUploader{batch: batchOf}
	m := NewManager(up, noLookup{}, logging.Discard())

	m.StartUpload([]models.SelectedFile{models.FileFromBytes("first.apk", nil)})
	second := m.StartUpload([]models.SelectedFile{models.FileFromBytes("second.apk", nil)})

	// The superseded request finishes first; the session must stay loading.
	up.release("first.apk")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.PhaseLoading, m.Snapshot().Phase)

	up.release("second.apk")
	s := waitFor(t, m, second)
	require.Len(t, s.Records, 1)
	assert.Equal(t, "second.apk", s.Records[0].Filename)
}

func TestManager_Subscribe(t *testing.T) {
	m := NewManager(nil, nil, logging.Discard())
	ch, unsubscribe := m.Subscribe(4)

	tk := m.Begin(models.SessionKindLookup)
	m.Fail(tk, models.ErrDigestNotFound)

	loading := <-ch
	assert.Equal(t, models.PhaseLoading, loading.Phase)
	failed := <-ch
	assert.Equal(t, models.PhaseError, failed.Phase)
	assert.Equal(t, models.MessageNotFound, failed.ErrorMessage)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestManager_RecoversPanickingAttempt(t *testing.T) {
	up := &gatedUploader{batch: func([]models.SelectedFile) *upload.Batch { panic("boom") }}
	m := NewManager(up, noLookup{}, logging.Discard())

	tk := m.StartUpload([]models.SelectedFile{models.FileFromBytes("a.apk", nil)})
	up.release("a.apk")

	s := waitFor(t, m, tk)
	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Equal(t, models.MessageUnexpected, s.ErrorMessage)
}

// newIntegrated wires the real hasher, backend client, orchestrator and
// lookup client against a fake backend.
func newIntegrated(t *testing.T, fake *testutil.FakeBackend) *Manager {
	t.Helper()
	bc, err := backend.New(backend.Options{BaseURL: fake.URL(), ScanTimeout: 2 * time.Second, QueryTimeout: time.Second}, logging.Discard())
	require.NoError(t, err)
	orch := upload.NewOrchestrator(hasher.New(2, logging.Discard()), bc, 0, logging.Discard())
	return NewManager(orch, lookup.NewClient(bc, logging.Discard()), logging.Discard())
}

func TestManager_UploadEndToEnd(t *testing.T) {
	fake := testutil.NewFakeBackend()
	defer fake.Close()
	fake.ReverseOrder()

	a := []byte("PK content of a")
	b := []byte("PK content of b")
	d1 := fake.SetVerdict(a, "benign", 0.0021)
	d2 := fake.SetVerdict(b, "riskware", 0.71234)

	m := newIntegrated(t, fake)
	tk := m.StartUpload([]models.SelectedFile{
		models.FileFromBytes("b.apk", b),
		models.FileFromBytes("a.apk", a),
		models.FileFromBytes("notes.txt", []byte("not an apk")),
	})

	s := waitFor(t, m, tk)
	require.Equal(t, models.PhaseSuccess, s.Phase, s.ErrorMessage)
	require.Len(t, s.Records, 2)

	assert.Equal(t, "a.apk", s.Records[0].Filename)
	assert.Equal(t, d1, s.Records[0].Digest)
	assert.Equal(t, models.LabelBenign, s.Records[0].Prediction.Label)
	assert.Equal(t, "0.002", s.Records[0].Prediction.DisplayProbability())

	assert.Equal(t, "b.apk", s.Records[1].Filename)
	assert.Equal(t, d2, s.Records[1].Digest)
	assert.Equal(t, models.LabelRiskware, s.Records[1].Prediction.Label)
	assert.Equal(t, "0.712", s.Records[1].Prediction.DisplayProbability())

	assert.Equal(t, []string{"notes.txt"}, s.Unscanned)
	assert.Equal(t, models.SessionKindUpload, s.Kind)
	assert.NotNil(t, s.FinishedAt)
}

func TestManager_UploadBackendErrorVerbatim(t *testing.T) {
	fake := testutil.NewFakeBackend()
	defer fake.Close()
	fake.FailScans("Failed to parse multipart field")

	m := newIntegrated(t, fake)
	s := waitFor(t, m, m.StartUpload([]models.SelectedFile{models.FileFromBytes("a.apk", []byte("PK"))}))

	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Equal(t, "Failed to parse multipart field", s.ErrorMessage)
}

func TestManager_UploadTransportFailure(t *testing.T) {
	fake := testutil.NewFakeBackend()
	defer fake.Close()
	fake.SetScanStatus(502)

	m := newIntegrated(t, fake)
	s := waitFor(t, m, m.StartUpload([]models.SelectedFile{models.FileFromBytes("a.apk", []byte("PK"))}))

	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Contains(t, s.ErrorMessage, models.MessageUploadFailed)
}

func TestManager_UploadNothingReadable(t *testing.T) {
	fake := testutil.NewFakeBackend()
	defer fake.Close()

	m := newIntegrated(t, fake)
	s := waitFor(t, m, m.StartUpload([]models.SelectedFile{
		models.FileFromPath(filepath.Join(t.TempDir(), "missing.apk")),
	}))

	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Equal(t, models.MessageNothingRead, s.ErrorMessage)
	assert.Equal(t, []string{"missing.apk"}, s.Unreadable)
	assert.Zero(t, fake.ScanCalls.Load())
}

func TestManager_LookupPaths(t *testing.T) {
	fake := testutil.NewFakeBackend()
	defer fake.Close()
	known := fake.SetVerdict([]byte("PK known"), "benign", 0.999999)

	m := newIntegrated(t, fake)

	tk, err := m.StartLookup(string(known))
	require.NoError(t, err)
	s := waitFor(t, m, tk)
	require.Equal(t, models.PhaseSuccess, s.Phase)
	require.Len(t, s.Records, 1)
	assert.False(t, s.Records[0].HasFilename())
	assert.Equal(t, "0.999", s.Records[0].Prediction.DisplayProbability())

	tk, err = m.StartLookup(string(models.DigestOf([]byte("missing"))))
	require.NoError(t, err)
	s = waitFor(t, m, tk)
	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Equal(t, models.MessageNotFound, s.ErrorMessage)
	assert.Empty(t, s.Records, "stale records are never shown after a new attempt")

	calls := fake.QueryCalls.Load()
	tk, err = m.StartLookup("not-a-digest")
	assert.ErrorIs(t, err, models.ErrInvalidDigest)
	s = m.Snapshot()
	assert.Equal(t, tk.Generation, s.Generation)
	assert.Equal(t, models.PhaseError, s.Phase)
	assert.Equal(t, models.MessageInvalidDigest, s.ErrorMessage)
	assert.Equal(t, calls, fake.QueryCalls.Load(), "malformed input never reaches the network")
}

func TestManager_WaitHonoursContext(t *testing.T) {
	m := NewManager(nil, nil, logging.Discard())
	tk := m.Begin(models.SessionKindUpload)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s, err := m.Wait(ctx, tk.Generation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.PhaseLoading, s.Phase)
}
