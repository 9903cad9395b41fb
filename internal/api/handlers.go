package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// healthHandler reports process liveness. It does not probe collaborators;
// backend health feeds the pipeline's degraded-mode baseline instead.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runHandler executes one conversation turn. Invalid request bodies yield
// 400; pipeline-integrity failures yield 500. Collaborator outages never
// surface here, the pipeline absorbs them into a degraded-mode reply.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.runHandler: failed to decode request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON request body"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.runHandler: invalid run request", "session_id", req.SessionID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	turnID := uuid.NewString()
	slog.Info("Server.runHandler: starting turn", "turn_id", turnID, "session_id", req.SessionID, "user_role", req.UserRole)

	state := &models.ConversationState{
		SessionID:      req.SessionID,
		UserRole:       req.UserRole,
		Language:       req.Language,
		PatientContext: req.PatientContext,
		IncomingMessage: &models.Message{
			Sender:    "user",
			Content:   req.Message,
			Timestamp: time.Now().UTC(),
		},
	}
	if state.PatientContext == nil {
		state.PatientContext = map[string]any{}
	}

	final, err := s.pipeline.Run(r.Context(), state)
	if err != nil {
		slog.Error("Server.runHandler: pipeline run failed", "turn_id", turnID, "session_id", req.SessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process conversation turn"))
		return
	}

	reply := final.Reply
	if reply == "" {
		reply = final.LatestMessageContent()
	}
	slog.Info("Server.runHandler: turn complete", "turn_id", turnID, "session_id", req.SessionID, "degraded", final.DegradedMode)

	writeJSONResponse(w, http.StatusOK, models.Success(models.RunResponse{
		Reply: reply,
		State: final,
	}))
}
