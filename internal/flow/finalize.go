package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// maxReplyPrograms caps how many program matches appear in the reply.
const maxReplyPrograms = 3

// maxReplyReminders caps how many recent reminders appear in the reply.
const maxReplyReminders = 2

// finalize composes the reply text from the accumulated state, appends it to
// history as an assistant message, and marks the turn complete. The reply is
// a pure function of the state fields it reads, so re-running finalize on an
// otherwise unchanged state reproduces the same text.
func (p *Pipeline) finalize(_ context.Context, state *models.ConversationState) {
	level := models.TriageLevelSelfCare
	reason := ""
	urgency := "Monitor"
	if state.TriageResult != nil {
		level = state.TriageResult.Level
		reason = state.TriageResult.Reason
		urgency = state.TriageResult.RecommendedUrgency
	}

	parts := []string{
		fmt.Sprintf("Triage level: %s.", level),
		reason,
		fmt.Sprintf("Urgency: %s.", urgency),
	}

	if lines := facilityLines(state.FacilityRecommendations); len(lines) > 0 {
		parts = append(parts, "Suggested facilities:\n"+strings.Join(lines, "\n"))
	}
	if lines := programLines(state.ProgramEligibility); len(lines) > 0 {
		parts = append(parts, "Program matches:\n"+strings.Join(lines, "\n"))
	}
	if lines := reminderLines(state.Reminders); len(lines) > 0 {
		parts = append(parts, "Reminders set:\n"+strings.Join(lines, "\n"))
	}
	parts = append(parts, SafetyDisclaimer)

	nonEmpty := parts[:0]
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	reply := strings.Join(nonEmpty, "\n\n")

	state.Messages = append(state.Messages, models.Message{
		Sender:    "assistant",
		Content:   reply,
		Timestamp: p.now().UTC(),
	})
	state.Done = true
	state.Reply = reply
}

func facilityLines(facilities []models.Facility) []string {
	lines := make([]string, 0, len(facilities))
	for _, fac := range facilities {
		status := "Open"
		if !fac.IsOpen {
			status = "Closed"
		}
		lines = append(lines, fmt.Sprintf("• %s (%s) - %s", fac.Name, fac.Type, status))
	}
	return lines
}

func programLines(programs []models.Program) []string {
	if len(programs) > maxReplyPrograms {
		programs = programs[:maxReplyPrograms]
	}
	lines := make([]string, 0, len(programs))
	for _, program := range programs {
		status := "Review"
		if program.LikelyEligible {
			status = "Eligible"
		}
		lines = append(lines, fmt.Sprintf("• %s: %s - %s", program.Name, status, program.Reason))
	}
	return lines
}

func reminderLines(reminders []models.Reminder) []string {
	if len(reminders) > maxReplyReminders {
		reminders = reminders[len(reminders)-maxReplyReminders:]
	}
	lines := make([]string, 0, len(reminders))
	for _, rem := range reminders {
		lines = append(lines, fmt.Sprintf("• %s on %s", rem.Message, rem.ScheduledAt.UTC().Format(time.RFC3339)))
	}
	return lines
}
