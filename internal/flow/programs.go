package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// programEligibility queries assistance-program eligibility from patient
// context, applying fixed defaults for absent fields. A backend failure
// substitutes a single synthetic eligible program with offline application
// instructions and latches degraded_mode.
func (p *Pipeline) programEligibility(ctx context.Context, state *models.ConversationState) {
	if !state.NeedsPrograms {
		return
	}

	pc := state.PatientContext
	req := models.EligibilityRequest{
		PatientID:        contextIntPtr(pc, "id"),
		Age:              contextInt(pc, "age", 25),
		Gender:           contextString(pc, "gender", "female"),
		District:         contextString(pc, "district", "Islamabad"),
		IncomeBracket:    contextString(pc, "incomeBracket", "low"),
		HasMockSehatCard: contextBool(pc, "hasMockSehatCard", true),
	}

	programs, err := p.backend.ProgramEligibility(ctx, req)
	if err != nil {
		slog.Warn("flow.programEligibility: eligibility check failed, using offline fallback", "session_id", state.SessionID, "error", err)
		programs = []models.Program{offlineProgramFallback(err)}
		state.DegradedMode = true
	}
	state.ProgramEligibility = programs

	p.backend.LogToolCall(ctx, models.ToolCallLog{
		ToolName: "program_eligibility",
		Response: fmt.Sprintf("%d programs", len(programs)),
		Success:  err == nil,
	})
}

// offlineProgramFallback builds the synthetic fallback eligibility record.
func offlineProgramFallback(err error) models.Program {
	return models.Program{
		ProgramID:      0,
		Name:           "Offline maternal voucher",
		LikelyEligible: true,
		Reason:         fmt.Sprintf("Offline fallback due to %v", err),
		MockApplication: &models.MockApplication{
			Instructions: "Visit nearest LHW office with placeholder CNIC 12345-xxxxxxx-x.",
			Contact:      "LHW supervisor",
		},
	}
}
