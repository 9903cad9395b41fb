package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// maxFacilityRecommendations caps how many facilities are surfaced per turn.
const maxFacilityRecommendations = 3

// facilityFinder searches for nearby care facilities when triage requested
// them. A backend failure substitutes a single synthetic offline suggestion
// and latches degraded_mode.
func (p *Pipeline) facilityFinder(ctx context.Context, state *models.ConversationState) {
	if !state.NeedsFacility {
		return
	}

	pc := state.PatientContext
	req := models.FacilitySearchRequest{
		District:         contextStringPtr(pc, "district"),
		Tehsil:           contextStringPtr(pc, "tehsil"),
		Lat:              contextFloatPtr(pc, "lat"),
		Lng:              contextFloatPtr(pc, "lng"),
		RequiredServices: servicesForTriage(state.TriageResult),
	}

	facilities, err := p.backend.SearchFacilities(ctx, req)
	if err != nil {
		slog.Warn("flow.facilityFinder: facility search failed, using offline suggestion", "session_id", state.SessionID, "error", err)
		facilities = []models.Facility{offlineFacilitySuggestion(err)}
		state.DegradedMode = true
	}
	if len(facilities) > maxFacilityRecommendations {
		facilities = facilities[:maxFacilityRecommendations]
	}
	state.FacilityRecommendations = facilities

	p.backend.LogToolCall(ctx, models.ToolCallLog{
		ToolName: "facility_search",
		Response: fmt.Sprintf("%d facilities", len(facilities)),
		Success:  err == nil,
	})
}

// servicesForTriage derives the required-services filter from the triage level.
func servicesForTriage(result *models.TriageResult) []string {
	if result == nil {
		return nil
	}
	switch result.Level {
	case models.TriageLevelEmergency:
		return []string{"emergency"}
	case models.TriageLevelClinic:
		return []string{"maternal", "pediatrics", "clinic"}
	}
	return nil
}

// offlineFacilitySuggestion builds the synthetic fallback facility record.
func offlineFacilitySuggestion(err error) models.Facility {
	return models.Facility{
		Name:            "Local clinic (offline suggestion)",
		Type:            "clinic",
		DistanceKm:      nil,
		IsOpen:          true,
		ServicesSummary: []string{"basic care"},
		StockAlerts:     []string{},
		Error:           err.Error(),
	}
}
