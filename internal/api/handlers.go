package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opengrievance/grievanced/internal/models"
	"github.com/opengrievance/grievanced/internal/store"
	"github.com/opengrievance/grievanced/internal/util"
)

// sessionIDHexLength is the length of the random hex suffix for minted session IDs.
const sessionIDHexLength = 16

// chatHandler handles POST /chat requests, routing a user turn through the
// orchestrator and returning the assistant reply.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.chatHandler: received chat request", "method", r.Method)

	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Server.chatHandler: failed to decode request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message is required"))
		return
	}

	// Mint a session ID when the client did not supply one; the caller
	// carries it forward on subsequent turns.
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = util.GenerateRandomID("sess-", sessionIDHexLength)
		slog.Debug("Server.chatHandler: minted new session ID", "sessionID", sessionID)
	}

	resp, err := s.orchestrator.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		slog.Error("Server.chatHandler: turn handling failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.chatHandler: turn processed", "sessionID", sessionID, "intent", resp.Intent, "phase", resp.Phase)
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// listComplaintsHandler handles GET /complaints with optional filter query
// parameters (submitter, contact, category, status, since, until, limit).
func (s *Server) listComplaintsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	spec, err := querySpecFromRequest(r)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	complaints, err := s.st.QueryComplaints(spec)
	if err != nil {
		slog.Error("Server.listComplaintsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to query complaints"))
		return
	}

	slog.Debug("Server.listComplaintsHandler: query succeeded", "count", len(complaints))
	writeJSONResponse(w, http.StatusOK, models.Success(complaints))
}

// complaintHandler dispatches /complaints/{id} and /complaints/{id}/status.
func (s *Server) complaintHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/complaints/")
	if rest == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Complaint ID is required"))
		return
	}

	if id, ok := strings.CutSuffix(rest, "/status"); ok {
		s.updateStatusHandler(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	s.getComplaintHandler(w, r, rest)
}

// getComplaintHandler handles GET /complaints/{id}.
func (s *Server) getComplaintHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	complaint, err := s.st.GetComplaint(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Complaint not found"))
			return
		}
		slog.Error("Server.getComplaintHandler: lookup failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch complaint"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(complaint))
}

// updateStatusHandler handles POST /complaints/{id}/status.
func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Server.updateStatusHandler: failed to decode request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}

	status := models.ComplaintStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !models.IsValidStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status value"))
		return
	}

	updated, err := s.st.UpdateComplaintStatus(id, status)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Complaint not found"))
		case errors.Is(err, store.ErrConstraintViolation):
			writeJSONResponse(w, http.StatusConflict, models.Error("Invalid status transition"))
		default:
			slog.Error("Server.updateStatusHandler: update failed", "error", err, "id", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update status"))
		}
		return
	}

	slog.Info("Server.updateStatusHandler: status updated", "id", id, "status", status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Status updated", updated))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// querySpecFromRequest builds a QuerySpec from request query parameters.
func querySpecFromRequest(r *http.Request) (models.QuerySpec, error) {
	q := r.URL.Query()
	spec := models.QuerySpec{
		Submitter: strings.TrimSpace(q.Get("submitter")),
		Contact:   strings.TrimSpace(q.Get("contact")),
		Category:  strings.ToLower(strings.TrimSpace(q.Get("category"))),
		Limit:     models.DefaultQueryLimit,
	}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := models.ComplaintStatus(strings.ToUpper(raw))
		if !models.IsValidStatus(status) {
			return models.QuerySpec{}, errors.New("invalid status filter")
		}
		spec.Status = status
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.QuerySpec{}, errors.New("invalid since timestamp; expected RFC3339")
		}
		spec.Since = &t
	}
	if raw := strings.TrimSpace(q.Get("until")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.QuerySpec{}, errors.New("invalid until timestamp; expected RFC3339")
		}
		spec.Until = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return models.QuerySpec{}, errors.New("invalid limit; expected a positive integer")
		}
		spec.Limit = n
	}

	return spec, nil
}
