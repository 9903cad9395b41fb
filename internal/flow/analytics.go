package flow

import (
	"context"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// analytics appends a hotspot flag for emergency classifications. It always
// runs, never fails, and makes no external calls.
func (p *Pipeline) analytics(_ context.Context, state *models.ConversationState) {
	if state.TriageResult == nil || state.TriageResult.Level != models.TriageLevelEmergency {
		return
	}
	state.AnalyticsFlags = append(state.AnalyticsFlags, models.AnalyticsFlag{
		Type:      "potential-hotspot",
		Message:   "Emergency case detected; monitor for clustering.",
		Timestamp: p.now().UTC(),
	})
}
