package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRunRequestValidate(t *testing.T) {
	valid := func() RunRequest {
		return RunRequest{SessionID: "s1", UserRole: UserRoleCitizen, Message: "hello"}
	}

	req := valid()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if req.Language != LanguageEnglish {
		t.Errorf("language should default to en, got %q", req.Language)
	}

	req = valid()
	req.SessionID = ""
	if err := req.Validate(); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}

	req = valid()
	req.UserRole = "robot"
	if err := req.Validate(); !errors.Is(err, ErrInvalidUserRole) {
		t.Errorf("expected ErrInvalidUserRole, got %v", err)
	}

	req = valid()
	req.Language = "fr"
	if err := req.Validate(); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("expected ErrInvalidLanguage, got %v", err)
	}

	req = valid()
	req.Message = ""
	if err := req.Validate(); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	req = valid()
	req.Message = strings.Repeat("a", MaxMessageLength+1)
	if err := req.Validate(); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}

	// Urdu is accepted alongside English.
	req = valid()
	req.Language = LanguageUrdu
	if err := req.Validate(); err != nil {
		t.Errorf("urdu request rejected: %v", err)
	}
}

func TestValidators(t *testing.T) {
	for _, level := range []TriageLevel{TriageLevelSelfCare, TriageLevelClinic, TriageLevelEmergency} {
		if !IsValidTriageLevel(level) {
			t.Errorf("level %q should be valid", level)
		}
	}
	if IsValidTriageLevel("hospital") {
		t.Error("unknown level should be invalid")
	}

	for _, role := range []UserRole{UserRoleCitizen, UserRoleLHW, UserRoleDoctor, UserRoleAdmin} {
		if !IsValidUserRole(role) {
			t.Errorf("role %q should be valid", role)
		}
	}
	if IsValidUserRole("") || IsValidUserRole("robot") {
		t.Error("empty and unknown roles should be invalid")
	}
}

func TestConversationStateJSONKeys(t *testing.T) {
	state := ConversationState{
		SessionID:     "s1",
		UserRole:      UserRoleCitizen,
		Language:      LanguageEnglish,
		DegradedMode:  true,
		NeedsFollowUp: true,
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, key := range []string{`"session_id"`, `"user_role"`, `"degraded_mode"`, `"needs_follow_up"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("state JSON missing key %s: %s", key, data)
		}
	}
}

func TestLatestMessageContent(t *testing.T) {
	state := ConversationState{}
	if got := state.LatestMessageContent(); got != "" {
		t.Errorf("empty history should yield empty content, got %q", got)
	}

	state.Messages = []Message{
		{Sender: "user", Content: "first"},
		{Sender: "assistant", Content: "second"},
	}
	if got := state.LatestMessageContent(); got != "second" {
		t.Errorf("expected latest message content, got %q", got)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]string{"k": "v"})
	if ok.Status != "ok" || ok.Result == nil || ok.Message != "" {
		t.Errorf("unexpected success envelope: %+v", ok)
	}

	fail := Error("boom")
	if fail.Status != "error" || fail.Message != "boom" || fail.Result != nil {
		t.Errorf("unexpected error envelope: %+v", fail)
	}
}
