package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evolvian/assistant-platform/internal/appointments"
	"github.com/evolvian/assistant-platform/internal/tenancy"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

type appointmentService interface {
	Register(ctx context.Context, tenantID string, req appointments.RegisterRequest) (*appointments.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status string) (int, error)
}

// AppointmentsHandler exposes appointment registration and status updates.
type AppointmentsHandler struct {
	svc    appointmentService
	logger *logging.Logger
}

// NewAppointmentsHandler creates a new appointments handler.
func NewAppointmentsHandler(svc appointmentService, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: appointment service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// RegisterAppointmentRequest is the payload for POST /v1/appointments.
type RegisterAppointmentRequest struct {
	TenantID    string `json:"tenant_id"`
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email"`
	UserPhone   string `json:"user_phone"`
	Type        string `json:"type"`
	ScheduledAt string `json:"scheduled_at"` // RFC 3339
}

// AppointmentResponse represents an appointment in API responses.
type AppointmentResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email,omitempty"`
	UserPhone   string `json:"user_phone,omitempty"`
	Type        string `json:"type"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
}

// Register handles POST /v1/appointments.
func (h *AppointmentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		req.TenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if req.TenantID == "" || req.ScheduledAt == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and scheduled_at are required")
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scheduled_at must be RFC 3339")
		return
	}

	appt, err := h.svc.Register(r.Context(), req.TenantID, appointments.RegisterRequest{
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		UserPhone:   req.UserPhone,
		Type:        req.Type,
		ScheduledAt: scheduled,
	})
	switch {
	case errors.Is(err, appointments.ErrPastTime):
		writeError(w, http.StatusUnprocessableEntity, "scheduled time is in the past")
		return
	case errors.Is(err, appointments.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot already taken")
		return
	case err != nil:
		h.logger.Error("failed to register appointment", "tenant_id", req.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register appointment")
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// UpdateStatusRequest is the payload for PATCH /v1/appointments/{appointmentID}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /v1/appointments/{appointmentID}/status.
func (h *AppointmentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reminders, err := h.svc.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, appointments.ErrInvalidStatus):
		writeError(w, http.StatusUnprocessableEntity, "invalid status")
		return
	case errors.Is(err, appointments.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	case err != nil:
		h.logger.Error("failed to update appointment status", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  id.String(),
		"status":              req.Status,
		"reminders_scheduled": reminders,
	})
}

func toAppointmentResponse(appt *appointments.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          appt.ID.String(),
		TenantID:    appt.TenantID,
		UserName:    appt.UserName,
		UserEmail:   appt.UserEmail,
		UserPhone:   appt.UserPhone,
		Type:        appt.Type,
		ScheduledAt: appt.ScheduledAt.UTC().Format(time.RFC3339),
		Status:      appt.Status,
	}
}
