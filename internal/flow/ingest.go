package flow

import (
	"context"
	"log/slog"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// ingest merges the incoming message into history, defaults all list-valued
// fields, probes backend health to set the degraded-mode baseline, and resets
// the routing flags for the new turn. The health probe is best-effort: its
// failure marks the turn degraded but never aborts it.
func (p *Pipeline) ingest(ctx context.Context, state *models.ConversationState) {
	if state.IncomingMessage != nil {
		state.Messages = append(state.Messages, *state.IncomingMessage)
		state.IncomingMessage = nil
	}
	if state.Messages == nil {
		state.Messages = []models.Message{}
	}
	if state.ProgramEligibility == nil {
		state.ProgramEligibility = []models.Program{}
	}
	if state.FacilityRecommendations == nil {
		state.FacilityRecommendations = []models.Facility{}
	}
	if state.Reminders == nil {
		state.Reminders = []models.Reminder{}
	}
	if state.AnalyticsFlags == nil {
		state.AnalyticsFlags = []models.AnalyticsFlag{}
	}

	degraded := state.DegradedMode
	health, err := p.backend.Health(ctx)
	if err != nil {
		slog.Warn("flow.ingest: health probe failed, assuming degraded", "session_id", state.SessionID, "error", err)
		degraded = true
	} else {
		degraded = health.DegradedMode
	}
	state.DegradedMode = degraded

	state.NeedsFacility = false
	state.NeedsPrograms = false
	state.NeedsFollowUp = false
}
