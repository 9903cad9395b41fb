package flow

import (
	"context"
	"time"

	"github.com/connectedhealth/triagepipe/internal/genai"
	"github.com/connectedhealth/triagepipe/internal/models"
)

// mockBackend records calls and returns configured results or errors.
type mockBackend struct {
	health    models.HealthStatus
	healthErr error

	facilities    []models.Facility
	facilitiesErr error
	facilityReqs  []models.FacilitySearchRequest

	programs        []models.Program
	programsErr     error
	eligibilityReqs []models.EligibilityRequest

	reminder     models.Reminder
	reminderErr  error
	reminderReqs []models.ReminderRequest

	interactions []models.InteractionLog
	toolCalls    []models.ToolCallLog
}

func (m *mockBackend) Health(context.Context) (models.HealthStatus, error) {
	if m.healthErr != nil {
		return models.HealthStatus{}, m.healthErr
	}
	return m.health, nil
}

func (m *mockBackend) SearchFacilities(_ context.Context, req models.FacilitySearchRequest) ([]models.Facility, error) {
	m.facilityReqs = append(m.facilityReqs, req)
	if m.facilitiesErr != nil {
		return nil, m.facilitiesErr
	}
	return m.facilities, nil
}

func (m *mockBackend) ProgramEligibility(_ context.Context, req models.EligibilityRequest) ([]models.Program, error) {
	m.eligibilityReqs = append(m.eligibilityReqs, req)
	if m.programsErr != nil {
		return nil, m.programsErr
	}
	return m.programs, nil
}

func (m *mockBackend) CreateReminder(_ context.Context, req models.ReminderRequest) (models.Reminder, error) {
	m.reminderReqs = append(m.reminderReqs, req)
	if m.reminderErr != nil {
		return models.Reminder{}, m.reminderErr
	}
	reminder := m.reminder
	if reminder.Message == "" {
		reminder = models.Reminder{
			ID:          1,
			PatientID:   req.PatientID,
			Type:        req.Type,
			Message:     req.Message,
			ScheduledAt: req.ScheduledAt,
			Status:      "scheduled",
		}
	}
	return reminder, nil
}

func (m *mockBackend) LogInteraction(_ context.Context, entry models.InteractionLog) {
	m.interactions = append(m.interactions, entry)
}

func (m *mockBackend) LogToolCall(_ context.Context, entry models.ToolCallLog) {
	m.toolCalls = append(m.toolCalls, entry)
}

// mockRetriever returns configured matches or an error.
type mockRetriever struct {
	matches []models.KnowledgeMatch
	err     error
	queries []string
}

func (m *mockRetriever) Query(_ context.Context, text string, _ int) ([]models.KnowledgeMatch, error) {
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

// mockGenAI returns a configured completion or error.
type mockGenAI struct {
	available bool
	response  string
	err       error
	prompts   []string
}

func (m *mockGenAI) Available() bool { return m.available }

func (m *mockGenAI) Generate(_ context.Context, prompt string, _ genai.ModelVariant) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockGenAI) Embed(context.Context, string) ([]float64, error) {
	return nil, nil
}

var testClock = func() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestState(message string) *models.ConversationState {
	return &models.ConversationState{
		SessionID:      "session-1",
		UserRole:       models.UserRoleCitizen,
		Language:       models.LanguageEnglish,
		PatientContext: map[string]any{},
		IncomingMessage: &models.Message{
			Sender:    "user",
			Content:   message,
			Timestamp: testClock(),
		},
	}
}
