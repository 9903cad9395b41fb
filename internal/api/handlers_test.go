package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// stubPipeline returns a canned state or error and records the state it received.
type stubPipeline struct {
	received *models.ConversationState
	result   *models.ConversationState
	err      error
}

func (s *stubPipeline) Run(_ context.Context, state *models.ConversationState) (*models.ConversationState, error) {
	s.received = state
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	state.Done = true
	state.Reply = "Triage level: self-care."
	return state, nil
}

func postRun(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestRunHandlerSuccess(t *testing.T) {
	pipeline := &stubPipeline{}
	server := NewServer(pipeline)

	rec := postRun(t, server, `{"session_id":"s1","user_role":"citizen","message":"my child has a fever","patient_context":{"district":"Lahore"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %q", resp.Status)
	}

	state := pipeline.received
	if state == nil {
		t.Fatal("pipeline was not invoked")
	}
	if state.SessionID != "s1" || state.UserRole != models.UserRoleCitizen {
		t.Errorf("unexpected initial state: %+v", state)
	}
	if state.Language != models.LanguageEnglish {
		t.Errorf("language should default to en, got %q", state.Language)
	}
	if state.IncomingMessage == nil || state.IncomingMessage.Content != "my child has a fever" || state.IncomingMessage.Sender != "user" {
		t.Errorf("incoming message not staged: %+v", state.IncomingMessage)
	}
	if state.PatientContext["district"] != "Lahore" {
		t.Errorf("patient context not carried: %+v", state.PatientContext)
	}
}

func TestRunHandlerRejectsInvalidBody(t *testing.T) {
	server := NewServer(&stubPipeline{})

	cases := map[string]string{
		"malformed JSON":  `{"session_id":`,
		"missing session": `{"user_role":"citizen","message":"hi"}`,
		"bad role":        `{"session_id":"s1","user_role":"robot","message":"hi"}`,
		"empty message":   `{"session_id":"s1","user_role":"citizen","message":""}`,
		"bad language":    `{"session_id":"s1","user_role":"citizen","language":"fr","message":"hi"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postRun(t, server, body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp models.APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid response JSON: %v", err)
			}
			if resp.Status != "error" || resp.Message == "" {
				t.Errorf("expected error envelope with message, got %+v", resp)
			}
		})
	}
}

func TestRunHandlerPipelineFailure(t *testing.T) {
	server := NewServer(&stubPipeline{err: errors.New("step ceiling exceeded")})

	rec := postRun(t, server, `{"session_id":"s1","user_role":"citizen","message":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("expected error status, got %q", resp.Status)
	}
}

func TestRunHandlerReplyFallsBackToLastMessage(t *testing.T) {
	// A pipeline that finishes without composing a reply still yields a
	// non-empty reply from conversation history.
	result := &models.ConversationState{
		SessionID: "s1",
		UserRole:  models.UserRoleCitizen,
		Messages:  []models.Message{{Sender: "assistant", Content: "previous reply"}},
		Done:      true,
	}
	server := NewServer(&stubPipeline{result: result})

	rec := postRun(t, server, `{"session_id":"s1","user_role":"citizen","message":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status string             `json:"status"`
		Result models.RunResponse `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Result.Reply != "previous reply" {
		t.Errorf("expected fallback reply from history, got %q", resp.Result.Reply)
	}
	if resp.Result.State == nil || !resp.Result.State.Done {
		t.Errorf("final state should be echoed, got %+v", resp.Result.State)
	}
}

func TestHealthHandler(t *testing.T) {
	server := NewServer(&stubPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestRunEndpointRejectsGet(t *testing.T) {
	server := NewServer(&stubPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
