package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

// StatusProvider reports the current state of every source polling loop.
type StatusProvider interface {
	Status() domain.StatusReport
}

// StatusHandler handles GET /api/v1/status.
type StatusHandler struct {
	scheduler StatusProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(p StatusProvider) *StatusHandler {
	return &StatusHandler{scheduler: p}
}

// GetStatus returns the per-source polling state snapshot.
func (h *StatusHandler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Status())
}
