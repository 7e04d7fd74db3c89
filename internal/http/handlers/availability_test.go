package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolvian/assistant-platform/internal/calendar"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

type fakeAvailabilitySource struct {
	slots []time.Time
	err   error
}

func (f *fakeAvailabilitySource) Availability(_ context.Context, _ string) ([]time.Time, error) {
	return f.slots, f.err
}

func TestAvailabilityList(t *testing.T) {
	src := &fakeAvailabilitySource{slots: []time.Time{
		time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2030, 5, 1, 10, 30, 0, 0, time.UTC),
	}}
	h := NewAvailabilityHandler(src, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/availability?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TenantID string   `json:"tenant_id"`
		Slots    []string `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "tenant-1", resp.TenantID)
	assert.Equal(t, []string{"2030-05-01T10:00:00Z", "2030-05-01T10:30:00Z"}, resp.Slots)
}

func TestAvailabilityMissingTenant(t *testing.T) {
	h := NewAvailabilityHandler(&fakeAvailabilitySource{}, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/availability", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityNoIntegration(t *testing.T) {
	src := &fakeAvailabilitySource{err: calendar.ErrNoIntegration}
	h := NewAvailabilityHandler(src, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/availability?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAvailabilityProviderDown(t *testing.T) {
	src := &fakeAvailabilitySource{err: calendar.ErrUnavailable}
	h := NewAvailabilityHandler(src, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/availability?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAvailabilityUnknownError(t *testing.T) {
	src := &fakeAvailabilitySource{err: errors.New("boom")}
	h := NewAvailabilityHandler(src, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet, "/v1/availability?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
