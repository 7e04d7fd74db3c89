package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolvian/assistant-platform/internal/appointments"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

type fakeAppointmentService struct {
	registerErr error
	statusErr   error
	reminders   int
	lastTenant  string
	lastReq     appointments.RegisterRequest
	lastID      uuid.UUID
	lastStatus  string
}

func (f *fakeAppointmentService) Register(_ context.Context, tenantID string, req appointments.RegisterRequest) (*appointments.Appointment, error) {
	f.lastTenant = tenantID
	f.lastReq = req
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &appointments.Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		UserPhone:   req.UserPhone,
		Type:        req.Type,
		ScheduledAt: req.ScheduledAt,
		Status:      appointments.StatusPendingConfirmation,
	}, nil
}

func (f *fakeAppointmentService) UpdateStatus(_ context.Context, id uuid.UUID, status string) (int, error) {
	f.lastID = id
	f.lastStatus = status
	if f.statusErr != nil {
		return 0, f.statusErr
	}
	return f.reminders, nil
}

func registerBody(t *testing.T, scheduledAt string) *http.Request {
	t.Helper()
	body := `{"tenant_id":"tenant-1","user_name":"Ana","user_email":"ana@example.com","type":"consulta","scheduled_at":"` + scheduledAt + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/appointments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterAppointment(t *testing.T) {
	svc := &fakeAppointmentService{}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.Register(w, registerBody(t, "2030-05-01T10:00:00Z"))

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tenant-1", resp.TenantID)
	assert.Equal(t, "Ana", resp.UserName)
	assert.Equal(t, appointments.StatusPendingConfirmation, resp.Status)
	assert.Equal(t, "2030-05-01T10:00:00Z", resp.ScheduledAt)

	assert.Equal(t, "tenant-1", svc.lastTenant)
	assert.Equal(t, time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC), svc.lastReq.ScheduledAt.UTC())
}

func TestRegisterAppointmentBadTime(t *testing.T) {
	h := NewAppointmentsHandler(&fakeAppointmentService{}, logging.New("error"))

	w := httptest.NewRecorder()
	h.Register(w, registerBody(t, "next tuesday"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterAppointmentPastTime(t *testing.T) {
	svc := &fakeAppointmentService{registerErr: appointments.ErrPastTime}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.Register(w, registerBody(t, "2020-01-01T10:00:00Z"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRegisterAppointmentSlotTaken(t *testing.T) {
	svc := &fakeAppointmentService{registerErr: appointments.ErrSlotTaken}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.Register(w, registerBody(t, "2030-05-01T10:00:00Z"))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func statusRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, "/v1/appointments/"+id+"/status", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("appointmentID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestUpdateAppointmentStatus(t *testing.T) {
	svc := &fakeAppointmentService{reminders: 3}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	id := uuid.New()
	w := httptest.NewRecorder()
	h.UpdateStatus(w, statusRequest(id.String(), `{"status":"confirmed"}`))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp["status"])
	assert.Equal(t, float64(3), resp["reminders_scheduled"])
	assert.Equal(t, id, svc.lastID)
	assert.Equal(t, "confirmed", svc.lastStatus)
}

func TestUpdateAppointmentStatusInvalid(t *testing.T) {
	svc := &fakeAppointmentService{statusErr: appointments.ErrInvalidStatus}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.UpdateStatus(w, statusRequest(uuid.NewString(), `{"status":"bogus"}`))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateAppointmentStatusNotFound(t *testing.T) {
	svc := &fakeAppointmentService{statusErr: appointments.ErrNotFound}
	h := NewAppointmentsHandler(svc, logging.New("error"))

	w := httptest.NewRecorder()
	h.UpdateStatus(w, statusRequest(uuid.NewString(), `{"status":"confirmed"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAppointmentStatusBadID(t *testing.T) {
	h := NewAppointmentsHandler(&fakeAppointmentService{}, logging.New("error"))

	w := httptest.NewRecorder()
	h.UpdateStatus(w, statusRequest("not-a-uuid", `{"status":"confirmed"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
