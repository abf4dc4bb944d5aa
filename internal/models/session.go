package models

import "time"

// Phase is the lifecycle state of a scan session.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Terminal reports whether no further transition is expected for the
// current generation.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// SessionKind says which orchestration produced a session.
type SessionKind string

const (
	SessionKindUpload SessionKind = "upload"
	SessionKindLookup SessionKind = "lookup"
)

// ScanSession is the state observed by the presentation layer. A value is
// never mutated once published; every transition produces a new one.
type ScanSession struct {
	ID           string          `json:"id,omitempty"`
	Generation   uint64          `json:"generation"`
	Kind         SessionKind     `json:"kind,omitempty"`
	Phase        Phase           `json:"phase"`
	Records      []DisplayRecord `json:"records"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	// Unreadable lists selected files that could not be hashed.
	Unreadable []string `json:"unreadable,omitempty"`
	// Unscanned lists hashed files the backend returned no verdict for.
	Unscanned  []string   `json:"unscanned,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewScanSession returns the initial idle session.
func NewScanSession() ScanSession {
	return ScanSession{
		Phase:   PhaseIdle,
		Records: make([]DisplayRecord, 0),
	}
}

// Clone returns a copy that shares no slices with s.
func (s ScanSession) Clone() ScanSession {
	out := s
	out.Records = append(make([]DisplayRecord, 0, len(s.Records)), s.Records...)
	if s.Unreadable != nil {
		out.Unreadable = append([]string(nil), s.Unreadable...)
	}
	if s.Unscanned != nil {
		out.Unscanned = append([]string(nil), s.Unscanned...)
	}
	return out
}
