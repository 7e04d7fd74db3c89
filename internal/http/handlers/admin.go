package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/evolvian/assistant-platform/internal/history"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

type historyReader interface {
	Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]history.Message, error)
}

type ingestor interface {
	Upload(ctx context.Context, tenantID, source string, content io.Reader) error
	Reindex(ctx context.Context, tenantID string) (int, error)
}

// AdminHandler exposes operator endpoints: conversation inspection and
// retrieval reindexing.
type AdminHandler struct {
	hist    historyReader
	ingest  ingestor
	logger  *logging.Logger
}

// NewAdminHandler creates a new admin handler. ingest may be nil when object
// storage is not configured.
func NewAdminHandler(hist historyReader, ingest ingestor, logger *logging.Logger) *AdminHandler {
	if hist == nil {
		panic("handlers: history reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{hist: hist, ingest: ingest, logger: logger}
}

// HistoryEntry represents a stored conversation message in admin responses.
type HistoryEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp"`
}

// History handles GET /admin/history?tenant_id=...&session_id=...&limit=...
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	sessionID := r.URL.Query().Get("session_id")
	if tenantID == "" || sessionID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and session_id are required")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.hist.Recent(r.Context(), tenantID, sessionID, limit)
	if err != nil {
		h.logger.Error("failed to load conversation history", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			Channel:   m.Channel,
			Timestamp: m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":  tenantID,
		"session_id": sessionID,
		"messages":   entries,
	})
}

// UploadDocumentRequest is the payload for POST /admin/documents.
type UploadDocumentRequest struct {
	TenantID string `json:"tenant_id"`
	Source   string `json:"source"`
	Content  string `json:"content"`
}

// UploadDocument handles POST /admin/documents. The document is stored in
// object storage and indexed immediately.
func (h *AdminHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "document ingestion not configured")
		return
	}
	var req UploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.Source == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, source and content are required")
		return
	}

	if err := h.ingest.Upload(r.Context(), req.TenantID, req.Source, strings.NewReader(req.Content)); err != nil {
		h.logger.Error("document upload failed", "tenant_id", req.TenantID, "source", req.Source, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	h.logger.Info("document uploaded", "tenant_id", req.TenantID, "source", req.Source)
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant_id": req.TenantID,
		"source":    req.Source,
	})
}

// ReindexRequest is the payload for POST /admin/reindex.
type ReindexRequest struct {
	TenantID string `json:"tenant_id"`
}

// Reindex handles POST /admin/reindex. It rebuilds the tenant's retrieval
// index from the documents in object storage.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "document ingestion not configured")
		return
	}
	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	docs, err := h.ingest.Reindex(r.Context(), req.TenantID)
	if err != nil {
		h.logger.Error("reindex failed", "tenant_id", req.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "reindex failed")
		return
	}

	h.logger.Info("reindex completed", "tenant_id", req.TenantID, "documents", docs)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": req.TenantID,
		"documents": docs,
	})
}
