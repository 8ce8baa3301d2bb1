package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sweetpotato0/travel-router/audit"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/orchestrator"
)

// maxBodyBytes caps request bodies. Query length itself is enforced by the input guards.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	OK        bool                `json:"ok"`
	Error     string              `json:"error"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id"`
	Trace     []orchestrator.Step `json:"trace"`
}

type feedbackRequest struct {
	RequestID string  `json:"request_id"`
	Feedback  string  `json:"feedback"`
	Comment   *string `json:"comment,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.deps.Runner.Run(r.Context(), req)
	var rej *orchestrator.Rejection
	var internal *orchestrator.InternalError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &rej):
		writeError(w, http.StatusBadRequest, rej.Code, rej.Message, rej.RequestID, rej.Trace)
	case errors.As(err, &internal):
		writeInternal(w, internal.RequestID)
	default:
		id := uuid.NewString()
		s.logger.Error("query failed", "correlation_id", id, "error", err)
		status := http.StatusInternalServerError
		if r.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "internal_server_error", "Something exploded on our end. Check the logs.", id, nil)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.deps.Audit.Feedback(r.Context(), audit.Feedback{
		RequestID: req.RequestID,
		Feedback:  req.Feedback,
		Comment:   req.Comment,
	})
	if errors.Is(err, errors.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), RequestIDFromContext(r.Context()), nil)
		return
	}
	if err != nil {
		writeInternal(w, RequestIDFromContext(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Feedback recorded. Thank you!"})
}

func (s *Server) handleIndexBuild(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rebuild == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "index rebuild is not configured", RequestIDFromContext(r.Context()), nil)
		return
	}
	n, err := s.deps.Rebuild(r.Context())
	if err != nil {
		id := RequestIDFromContext(r.Context())
		s.logger.Error("index rebuild failed", "correlation_id", id, "error", err)
		writeInternal(w, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "chunks_indexed": n})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Threads.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, errors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "thread not found", RequestIDFromContext(r.Context()), nil)
		return
	}
	if err != nil {
		writeInternal(w, RequestIDFromContext(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Threads.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeInternal(w, RequestIDFromContext(r.Context()))
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "thread not found", RequestIDFromContext(r.Context()), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error(), RequestIDFromContext(r.Context()), nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string, trace []orchestrator.Step) {
	if trace == nil {
		trace = []orchestrator.Step{}
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, RequestID: requestID, Trace: trace})
}

func writeInternal(w http.ResponseWriter, correlationID string) {
	writeError(w, http.StatusInternalServerError, "internal_server_error", "Something exploded on our end. Check the logs.", correlationID, nil)
}
