package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/lookup"
	"github.com/apk-scanner/client/internal/models"
	"github.com/apk-scanner/client/internal/reconcile"
	"github.com/apk-scanner/client/internal/upload"
)

// Uploader runs one batch orchestration.
type Uploader interface {
	Run(ctx context.Context, files []models.SelectedFile) (*upload.Batch, error)
}

// Looker resolves one digest.
type Looker interface {
	Lookup(ctx context.Context, raw string) ([]models.DisplayRecord, error)
}

// Ticket identifies one orchestration attempt. Only the ticket of the
// current generation may resolve the session.
type Ticket struct {
	Generation uint64
	ID         string
	Kind       models.SessionKind
}

// Outcome is what a successful attempt hands to the session.
type Outcome struct {
	Records    []models.DisplayRecord
	Unreadable []string
	Unscanned  []string
}

// Manager owns the single active scan session. Every transition replaces the
// published snapshot wholesale; results of superseded attempts are dropped.
type Manager struct {
	mu         sync.RWMutex
	current    models.ScanSession
	generation uint64
	done       map[uint64]chan struct{}

	subscribers map[int]chan models.ScanSession
	nextSub     int

	uploader Uploader
	looker   Looker
	logger   *log.Logger
}

// NewManager creates a Manager in the idle state.
func NewManager(uploader Uploader, looker Looker, logger *log.Logger) *Manager {
	return &Manager{
		current:     models.NewScanSession(),
		done:        make(map[uint64]chan struct{}),
		subscribers: make(map[int]chan models.ScanSession),
		uploader:    uploader,
		looker:      looker,
		logger:      logger,
	}
}

// Begin starts a new generation: prior records and error are cleared and the
// session moves to loading. Any attempt still pending is superseded.
func (m *Manager) Begin(kind models.SessionKind) Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.done[m.generation]; ok {
		close(ch)
		delete(m.done, m.generation)
		m.logger.Debugf("generation %d superseded", m.generation)
	}

	m.generation++
	t := Ticket{Generation: m.generation, ID: uuid.New().String(), Kind: kind}
	m.done[t.Generation] = make(chan struct{})

	now := time.Now()
	next := models.NewScanSession()
	next.ID = t.ID
	next.Generation = t.Generation
	next.Kind = kind
	next.Phase = models.PhaseLoading
	next.StartedAt = &now
	m.publishLocked(next)

	m.logger.Infof("[Session %s] %s started (generation %d)", t.ID[:8], kind, t.Generation)
	return t
}

// Succeed moves the session to success if t is still current. It reports
// whether the outcome was applied.
func (m *Manager) Succeed(t Ticket, out Outcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isCurrentLocked(t) {
		m.logger.Debugf("[Session %s] stale success dropped", t.ID[:8])
		return false
	}

	next := m.current.Clone()
	now := time.Now()
	next.Phase = models.PhaseSuccess
	next.Records = append(make([]models.DisplayRecord, 0, len(out.Records)), out.Records...)
	next.Unreadable = out.Unreadable
	next.Unscanned = out.Unscanned
	next.FinishedAt = &now
	m.publishLocked(next)
	m.resolveLocked(t.Generation)

	m.logger.Infof("[Session %s] success: %d records", t.ID[:8], len(out.Records))
	return true
}

// Fail moves the session to error if t is still current. The message shown
// is derived from err.
func (m *Manager) Fail(t Ticket, err error) bool {
	return m.FailWith(t, err, nil)
}

// FailWith is Fail that also keeps the names of unreadable files.
func (m *Manager) FailWith(t Ticket, err error, unreadable []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isCurrentLocked(t) {
		m.logger.Debugf("[Session %s] stale failure dropped: %v", t.ID[:8], err)
		return false
	}

	next := m.current.Clone()
	now := time.Now()
	next.Phase = models.PhaseError
	next.Records = make([]models.DisplayRecord, 0)
	next.ErrorMessage = models.UserMessage(err)
	next.Unreadable = unreadable
	next.FinishedAt = &now
	m.publishLocked(next)
	m.resolveLocked(t.Generation)

	m.logger.Warnf("[Session %s] error: %v", t.ID[:8], err)
	return true
}

func (m *Manager) isCurrentLocked(t Ticket) bool {
	return t.Generation == m.generation && m.current.Phase == models.PhaseLoading
}

func (m *Manager) resolveLocked(gen uint64) {
	if ch, ok := m.done[gen]; ok {
		close(ch)
		delete(m.done, gen)
	}
}

// publishLocked installs next and fans it out to subscribers. Slow
// subscribers miss intermediate snapshots rather than block transitions.
func (m *Manager) publishLocked(next models.ScanSession) {
	m.current = next
	for id, ch := range m.subscribers {
		select {
		case ch <- next.Clone():
		default:
			m.logger.Debugf("subscriber %d lagging, snapshot skipped", id)
		}
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() models.ScanSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Subscribe returns a channel receiving a snapshot after every transition
// and a function that ends the subscription.
func (m *Manager) Subscribe(buffer int) (<-chan models.ScanSession, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.ScanSession, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until the attempt of generation gen is resolved or superseded,
// then returns the current snapshot.
func (m *Manager) Wait(ctx context.Context, gen uint64) (models.ScanSession, error) {
	m.mu.RLock()
	ch, pending := m.done[gen]
	m.mu.RUnlock()

	if pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		}
	}
	return m.Snapshot(), nil
}

// StartUpload begins an upload attempt over files and runs it in the
// background. The returned ticket can be passed to Wait.
func (m *Manager) StartUpload(files []models.SelectedFile) Ticket {
	t := m.Begin(models.SessionKindUpload)
	go m.runUpload(t, files)
	return t
}

func (m *Manager) runUpload(t Ticket, files []models.SelectedFile) {
	defer m.recoverAttempt(t)

	batch, err := m.uploader.Run(context.Background(), files)
	if err != nil {
		var unreadable []string
		if batch != nil {
			unreadable = batch.Unreadable
		}
		m.FailWith(t, err, unreadable)
		return
	}

	m.Succeed(t, Outcome{
		Records:    reconcile.Reconcile(batch.Results, batch.Index),
		Unreadable: batch.Unreadable,
		Unscanned:  reconcile.Unscanned(batch.Index, batch.Results),
	})
}

// StartLookup begins a lookup attempt for raw. Malformed input resolves the
// attempt to error immediately, without a request, and the validation error
// is also returned.
func (m *Manager) StartLookup(raw string) (Ticket, error) {
	t := m.Begin(models.SessionKindLookup)

	if _, err := lookup.NormalizeDigest(raw); err != nil {
		m.Fail(t, err)
		return t, err
	}

	go m.runLookup(t, raw)
	return t, nil
}

func (m *Manager) runLookup(t Ticket, raw string) {
	defer m.recoverAttempt(t)

	records, err := m.looker.Lookup(context.Background(), raw)
	if err != nil {
		m.Fail(t, err)
		return
	}
	m.Succeed(t, Outcome{Records: records})
}

// recoverAttempt turns a panic in an attempt into an error session so the
// presentation layer never observes a stuck loading state.
func (m *Manager) recoverAttempt(t Ticket) {
	if r := recover(); r != nil {
		m.logger.Errorf("[Session %s] PANIC recovered: %v", t.ID[:8], r)
		m.Fail(t, fmt.Errorf("attempt panicked: %v", r))
	}
}
