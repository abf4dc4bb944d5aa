// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	backend BackendPinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, backend BackendPinger) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		backend: backend,
	}
}

// HandleHealth returns server health status, including whether the
// classification backend answers
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	if h.backend != nil {
		if err := h.backend.Ping(c.Request().Context()); err != nil {
			apiErr := NewServiceUnavailableError("classification backend unreachable")
			apiErr.Details = err.Error()
			return apiErr
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"backend": "reachable",
	})
}
