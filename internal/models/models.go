// Package models defines the core data structures for TriagePipe.
//
// It includes the conversation state threaded through the pipeline, the
// records exchanged with the health backend, and the API request/response
// types shared across modules.
package models

import (
	"errors"
	"time"
)

// TriageLevel classifies the urgency of a patient's situation.
type TriageLevel string

const (
	// TriageLevelSelfCare indicates the patient can monitor at home.
	TriageLevelSelfCare TriageLevel = "self-care"
	// TriageLevelClinic indicates the patient should visit a clinic.
	TriageLevelClinic TriageLevel = "clinic"
	// TriageLevelEmergency indicates immediate emergency evaluation.
	TriageLevelEmergency TriageLevel = "emergency"
)

// IsValidTriageLevel checks if the given triage level is supported.
func IsValidTriageLevel(level TriageLevel) bool {
	switch level {
	case TriageLevelSelfCare, TriageLevelClinic, TriageLevelEmergency:
		return true
	default:
		return false
	}
}

// UserRole identifies who is driving the conversation.
type UserRole string

const (
	UserRoleCitizen UserRole = "citizen"
	UserRoleLHW     UserRole = "lhw"
	UserRoleDoctor  UserRole = "doctor"
	UserRoleAdmin   UserRole = "admin"
)

// IsValidUserRole checks if the given user role is supported.
func IsValidUserRole(role UserRole) bool {
	switch role {
	case UserRoleCitizen, UserRoleLHW, UserRoleDoctor, UserRoleAdmin:
		return true
	default:
		return false
	}
}

// Language identifies the conversation language.
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageUrdu       Language = "ur"
	LanguageRomanUrdu  Language = "roman-ur"
)

// IsValidLanguage checks if the given language is supported.
func IsValidLanguage(lang Language) bool {
	switch lang {
	case LanguageEnglish, LanguageUrdu, LanguageRomanUrdu:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for an incoming message
	MaxMessageLength = 4096
	// InteractionSummaryLimit caps input/output summaries sent to interaction logs
	InteractionSummaryLimit = 200
)

// Error variables for better error handling and testability
var (
	ErrEmptySessionID  = errors.New("session_id cannot be empty")
	ErrInvalidUserRole = errors.New("invalid user role")
	ErrInvalidLanguage = errors.New("invalid language")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
)

// Message is a single entry in the conversation history.
type Message struct {
	Sender    string    `json:"sender"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TriageResult is the classification produced by the triage stage.
type TriageResult struct {
	Level              TriageLevel `json:"level"`
	Reason             string      `json:"reason"`
	RecommendedUrgency string      `json:"recommendedUrgency"`
	Disclaimer         string      `json:"disclaimer"`
}

// Facility is a care facility candidate returned by the backend search.
type Facility struct {
	ID              int      `json:"id,omitempty"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	DistanceKm      *float64 `json:"distanceKm"`
	IsOpen          bool     `json:"isOpen"`
	ServicesSummary []string `json:"servicesSummary"`
	StockAlerts     []string `json:"stockAlerts"`
	// Error carries the failure text when this record is a synthetic
	// offline suggestion rather than a backend result.
	Error string `json:"error,omitempty"`
}

// MockApplication holds offline application instructions for a program.
type MockApplication struct {
	Instructions string `json:"instructions"`
	Contact      string `json:"contact"`
}

// Program is an assistance-program eligibility record.
type Program struct {
	ProgramID       int              `json:"programId"`
	Name            string           `json:"name"`
	LikelyEligible  bool             `json:"likelyEligible"`
	Reason          string           `json:"reason"`
	MockApplication *MockApplication `json:"mockApplication,omitempty"`
}

// Reminder is a scheduled follow-up or medication reminder.
type Reminder struct {
	ID          int       `json:"id,omitempty"`
	PatientID   int       `json:"patientId"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status,omitempty"`
	// Note carries the failure text when this reminder was synthesized
	// locally because the backend was unreachable.
	Note string `json:"note,omitempty"`
}

// AnalyticsFlag is a structured signal appended by the analytics stage.
type AnalyticsFlag struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the backend system health probe result.
type HealthStatus struct {
	GeminiOK     bool `json:"gemini_ok"`
	DBOK         bool `json:"db_ok"`
	DegradedMode bool `json:"degraded_mode"`
}

// KnowledgeMatch is a retrieved knowledge snippet with its metadata.
type KnowledgeMatch struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score,omitempty"`
}

// FacilitySearchRequest filters the backend facility search. Nil fields are
// omitted from the outgoing payload.
type FacilitySearchRequest struct {
	District         *string  `json:"district,omitempty"`
	Tehsil           *string  `json:"tehsil,omitempty"`
	Lat              *float64 `json:"lat,omitempty"`
	Lng              *float64 `json:"lng,omitempty"`
	RequiredServices []string `json:"requiredServices,omitempty"`
}

// EligibilityRequest carries patient attributes for program eligibility checks.
type EligibilityRequest struct {
	PatientID        *int   `json:"patientId,omitempty"`
	Age              int    `json:"age"`
	Gender           string `json:"gender"`
	District         string `json:"district"`
	IncomeBracket    string `json:"incomeBracket"`
	HasMockSehatCard bool   `json:"hasMockSehatCard"`
}

// ReminderRequest asks the backend to create a reminder.
type ReminderRequest struct {
	PatientID   int       `json:"patientId"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// InteractionLog is a best-effort record of one agent interaction.
type InteractionLog struct {
	AgentName     string `json:"agentName"`
	InputSummary  string `json:"inputSummary"`
	OutputSummary string `json:"outputSummary"`
	TriageLevel   string `json:"triageLevel,omitempty"`
}

// ToolCallLog is a best-effort record of one tool invocation.
type ToolCallLog struct {
	ToolName string `json:"toolName"`
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
	Success  bool   `json:"success"`
}

// RunRequest is the body accepted by POST /run.
type RunRequest struct {
	SessionID      string         `json:"session_id"`
	UserRole       UserRole       `json:"user_role"`
	Language       Language       `json:"language,omitempty"`
	Message        string         `json:"message"`
	PatientContext map[string]any `json:"patient_context,omitempty"`
}

// Validate performs comprehensive validation on a RunRequest, defaulting the
// language to English when unset.
func (r *RunRequest) Validate() error {
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	if !IsValidUserRole(r.UserRole) {
		return ErrInvalidUserRole
	}
	if r.Language == "" {
		r.Language = LanguageEnglish
	}
	if !IsValidLanguage(r.Language) {
		return ErrInvalidLanguage
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// RunResponse is the body returned by POST /run.
type RunResponse struct {
	Reply string             `json:"reply"`
	State *ConversationState `json:"state"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
