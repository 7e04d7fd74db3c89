package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/evolvian/assistant-platform/internal/calendar"
	"github.com/evolvian/assistant-platform/internal/tenancy"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

type availabilitySource interface {
	Availability(ctx context.Context, tenantID string) ([]time.Time, error)
}

// AvailabilityHandler exposes free calendar slots for a tenant.
type AvailabilityHandler struct {
	resolver availabilitySource
	logger   *logging.Logger
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(resolver availabilitySource, logger *logging.Logger) *AvailabilityHandler {
	if resolver == nil {
		panic("handlers: availability resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{resolver: resolver, logger: logger}
}

// List handles GET /v1/availability?tenant_id=...
func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	slots, err := h.resolver.Availability(r.Context(), tenantID)
	switch {
	case errors.Is(err, calendar.ErrNoIntegration):
		writeError(w, http.StatusNotFound, "no active calendar integration")
		return
	case errors.Is(err, calendar.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "calendar provider unavailable")
		return
	case err != nil:
		h.logger.Error("failed to load availability", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}

	formatted := make([]string, 0, len(slots))
	for _, s := range slots {
		formatted = append(formatted, s.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"slots":     formatted,
	})
}
