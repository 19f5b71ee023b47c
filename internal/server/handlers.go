package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// DocumentFormats reports which uploads the extractor can read.
type DocumentFormats interface {
	Supported(name string) bool
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	sessions    *Manager
	formats     DocumentFormats
	uploadLimit int64
}

func NewHandler(sessions *Manager, formats DocumentFormats, uploadLimitMB int) *Handler {
	return &Handler{sessions: sessions, formats: formats, uploadLimit: int64(uploadLimitMB) << 20}
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func sendError(w http.ResponseWriter, err error) {
	sendJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuestion), errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotReady), errors.Is(err, models.ErrSessionFailed), errors.Is(err, models.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnsupportedDocument):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrUnreadableDocument), errors.Is(err, models.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbeddingService), errors.Is(err, models.ErrGenerationService):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleHealth handles GET /health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.sessions.Len()})
}

// HandleCreateSession handles POST /sessions requests.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, s.Status())
}

// HandleStatus handles GET /sessions/{id} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	sendJSON(w, http.StatusOK, s.Status())
}

// HandleDeleteSession handles DELETE /sessions/{id} requests.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(mux.Vars(r)["id"]) {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpload handles PUT /sessions/{id}/document requests. The document is
// either the "file" field of a multipart form or the raw body with its name
// in the "name" query parameter.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	name, data, err := readDocument(r, h.uploadLimit)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "document exceeds upload limit"})
			return
		}
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	// Checked before LoadDocument, which resets the session.
	if !h.formats.Supported(name) {
		sendError(w, fmt.Errorf("%w: %s", models.ErrUnsupportedDocument, name))
		return
	}

	status, err := s.LoadDocument(r.Context(), name, data)
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

func readDocument(r *http.Request, limit int64) (string, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return "", nil, err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return header.Filename, data, err
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		return "", nil, errors.New("document name is required (multipart file or ?name=)")
	}
	data, err := io.ReadAll(r.Body)
	return name, data, err
}

// HandleQuery handles POST /sessions/{id}/query requests.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON: " + err.Error()})
		return
	}

	answer, err := s.Ask(r.Context(), req.Question)
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, answer)
}
