// handlers_scan.go - Scan, lookup and session handlers
package api

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/apk-scanner/client/internal/session"
	"github.com/apk-scanner/client/internal/storage"
)

// ScanHandlerImpl implements the ScanHandler interface
type ScanHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
}

// NewScanHandler creates a new scan handler instance
func NewScanHandler(store storage.Store, sessions SessionManager) ScanHandler {
	return &ScanHandlerImpl{
		store:    store,
		sessions: sessions,
	}
}

// HandleStartScan uploads the current selection as one batch. The result is
// delivered through the session, not this response.
func (h *ScanHandlerImpl) HandleStartScan(c echo.Context) error {
	files := h.store.Selection()
	if len(files) == 0 {
		return NewBadRequestError("no files selected", nil)
	}

	t := h.sessions.StartUpload(files)
	return c.JSON(http.StatusAccepted, ticketResponse(t))
}

// HandleStartLookup looks up one digest. Malformed digests are rejected
// with 400 before any request reaches the backend.
func (h *ScanHandlerImpl) HandleStartLookup(c echo.Context) error {
	var req lookupRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Digest == "" {
		return NewValidationError("digest")
	}

	t, err := h.sessions.StartLookup(req.Digest)
	if err != nil {
		return NewInvalidDigestError(err)
	}
	return c.JSON(http.StatusAccepted, ticketResponse(t))
}

// HandleGetSession returns the current scan session
func (h *ScanHandlerImpl) HandleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.Snapshot())
}

// HandleGetSessionMsgpack returns the current scan session encoded as msgpack,
// with the same field names as the JSON form
func (h *ScanHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(h.sessions.Snapshot()); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// Request/Response types

type lookupRequest struct {
	Digest string `json:"digest"`
}

func ticketResponse(t session.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":  t.ID,
		"generation": t.Generation,
		"kind":       t.Kind,
	}
}
