// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/apk-scanner/client/internal/models"
	"github.com/apk-scanner/client/internal/session"
)

// SelectionHandler manages the files selected for the next scan
type SelectionHandler interface {
	HandleAddFiles(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleClearFiles(c echo.Context) error
}

// ScanHandler starts orchestrations and exposes the scan session
type ScanHandler interface {
	HandleStartScan(c echo.Context) error
	HandleStartLookup(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleGetSessionMsgpack(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for the scan session
// This allows mocking in tests
type SessionManager interface {
	StartUpload(files []models.SelectedFile) session.Ticket
	StartLookup(raw string) (session.Ticket, error)
	Snapshot() models.ScanSession
	Subscribe(buffer int) (<-chan models.ScanSession, func())
}

// BackendPinger checks the classification service
type BackendPinger interface {
	Ping(ctx context.Context) error
}
