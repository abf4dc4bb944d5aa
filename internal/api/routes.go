// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/apk-scanner/client/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions SessionManager
	Backend  BackendPinger
	Version  string
	Logger   *log.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Selection SelectionHandler
	Scan      ScanHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Backend),
		Selection: NewSelectionHandler(deps.Store),
		Scan:      NewScanHandler(deps.Store, deps.Sessions),
		WebSocket: NewWebSocketHandler(deps.Sessions, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	api.GET("/health", handlers.Health.HandleHealth)

	// Selection
	api.POST("/selection", handlers.Selection.HandleAddFiles)
	api.GET("/selection", handlers.Selection.HandleListFiles)
	api.DELETE("/selection", handlers.Selection.HandleClearFiles)
	api.GET("/selection/:id", handlers.Selection.HandleGetFile)
	api.DELETE("/selection/:id", handlers.Selection.HandleRemoveFile)

	// Orchestration
	api.POST("/scan", handlers.Scan.HandleStartScan)
	api.POST("/lookup", handlers.Scan.HandleStartLookup)

	// Session
	api.GET("/session", handlers.Scan.HandleGetSession)
	api.GET("/session/msgpack", handlers.Scan.HandleGetSessionMsgpack)
	api.GET("/ws/session", handlers.WebSocket.HandleWebSocket)
}
