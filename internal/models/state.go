// Package models defines state types threaded through the conversation pipeline.
package models

// ConversationState is the single mutable record threaded through all
// pipeline stages for one conversation turn. Each stage owns the fields it
// writes; no stage overwrites another stage's authoritative field.
type ConversationState struct {
	SessionID      string         `json:"session_id"`
	UserRole       UserRole       `json:"user_role"`
	Language       Language       `json:"language"`
	Messages       []Message      `json:"messages"`
	PatientContext map[string]any `json:"patient_context"`

	// IncomingMessage is consumed by the ingest stage and cleared afterwards.
	IncomingMessage *Message `json:"incoming_message,omitempty"`

	TriageResult            *TriageResult   `json:"triage_result"`
	ProgramEligibility      []Program       `json:"program_eligibility"`
	FacilityRecommendations []Facility      `json:"facility_recommendations"`
	Reminders               []Reminder      `json:"reminders"`
	AnalyticsFlags          []AnalyticsFlag `json:"analytics_flags"`

	// DegradedMode is a one-way latch: true once any dependency has failed
	// or been bypassed during the current turn.
	DegradedMode bool `json:"degraded_mode"`

	// Routing flags computed by the triage stage.
	NeedsFacility bool `json:"needs_facility"`
	NeedsPrograms bool `json:"needs_programs"`
	NeedsFollowUp bool `json:"needs_follow_up"`

	Done  bool   `json:"done"`
	Reply string `json:"reply,omitempty"`
}

// LatestMessageContent returns the content of the most recent message, or an
// empty string when the history is empty.
func (s *ConversationState) LatestMessageContent() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}
