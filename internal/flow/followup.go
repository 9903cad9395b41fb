package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// followUp schedules a reminder keyed to the triage level: a next-day
// reminder for emergencies, otherwise three days out. A backend failure
// appends a locally synthesized reminder and latches degraded_mode.
func (p *Pipeline) followUp(ctx context.Context, state *models.ConversationState) {
	if !state.NeedsFollowUp {
		return
	}

	level := models.TriageLevelSelfCare
	if state.TriageResult != nil {
		level = state.TriageResult.Level
	}

	reminderType := "medication"
	if level == models.TriageLevelClinic {
		reminderType = "followup"
	}
	scheduleInDays := 3
	if level == models.TriageLevelEmergency {
		scheduleInDays = 1
	}

	req := models.ReminderRequest{
		PatientID:   contextInt(state.PatientContext, "id", 1),
		Type:        reminderType,
		Message:     fmt.Sprintf("Follow-up after triage result: %s", level),
		ScheduledAt: p.now().UTC().Add(time.Duration(scheduleInDays) * 24 * time.Hour),
	}

	reminder, err := p.backend.CreateReminder(ctx, req)
	if err != nil {
		slog.Warn("flow.followUp: reminder creation failed, synthesizing locally", "session_id", state.SessionID, "error", err)
		reminder = models.Reminder{
			PatientID:   req.PatientID,
			Type:        req.Type,
			Message:     req.Message,
			ScheduledAt: req.ScheduledAt,
			Status:      "scheduled",
			Note:        fmt.Sprintf("Offline reminder due to %v", err),
		}
		state.DegradedMode = true
	}
	state.Reminders = append(state.Reminders, reminder)

	p.backend.LogToolCall(ctx, models.ToolCallLog{
		ToolName: "create_reminder",
		Response: fmt.Sprintf("type=%s scheduled_at=%s", req.Type, req.ScheduledAt.Format(time.RFC3339)),
		Success:  err == nil,
	})
}
