package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gigboard/dispatch/dispatch"
	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/notify"
	"github.com/gigboard/dispatch/skillfolio"
)

type enqueueRequest struct {
	UserID   int64                  `json:"userId"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleEnqueue submits a skillfolio generation job.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID <= 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userId is required"})
		return
	}

	result, err := s.dispatcher.Enqueue(skillfolio.JobType, dispatch.Payload{
		UserID:   req.UserID,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.logger.Errorw("Enqueue failed", "user_id", req.UserID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to enqueue job"})
		return
	}

	s.writeJSON(w, http.StatusAccepted, result)
}

// handleListJobs returns every state bucket with counts.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dispatcher.ListAll()
	if err != nil {
		s.logger.Errorw("Job listing failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list jobs"})
		return
	}
	s.writeJSON(w, http.StatusOK, overview)
}

// handleJobStatus answers a status query by logical or physical id. Unknown
// ids map to 404 with the structured not-found body.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Errorw("Status query failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query job status"})
		return
	}

	code := http.StatusOK
	if result.Status == "not_found" {
		code = http.StatusNotFound
	}
	s.writeJSON(w, code, result)
}

// handleListNotifications returns a user's notifications, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user query parameter is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	notifications, err := s.notifications.ListByUser(userID, limit)
	if err != nil {
		s.logger.Errorw("Notification listing failed", "user_id", userID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list notifications"})
		return
	}
	if notifications == nil {
		notifications = []*notify.Notification{}
	}
	s.writeJSON(w, http.StatusOK, notifications)
}

// handleMarkRead flags a notification as read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid notification id"})
		return
	}

	if err := s.notifications.MarkRead(id); err != nil {
		if errors.IsNotFoundError(err) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "notification not found"})
			return
		}
		s.logger.Errorw("Mark read failed", "notification_id", id, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to update notification"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket upgrades the connection and serves the user's live channel
// until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warnw("WebSocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	s.hub.Open(userID, conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warnw("Response encoding failed", "error", err)
	}
}
