package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/connectedhealth/triagepipe/internal/models"
)

func TestFinalizeComposesFullReply(t *testing.T) {
	p := NewPipeline(&mockBackend{}, nil, nil, WithClock(testClock))

	dist := 2.5
	state := newTestState("")
	state.TriageResult = &models.TriageResult{
		Level:              models.TriageLevelClinic,
		Reason:             "Persistent fever needs assessment",
		RecommendedUrgency: "Visit a clinic within 24 hours",
	}
	state.FacilityRecommendations = []models.Facility{
		{Name: "RHC Model Town", Type: "clinic", DistanceKm: &dist, IsOpen: true},
		{Name: "DHQ Hospital", Type: "hospital", IsOpen: false},
	}
	state.ProgramEligibility = []models.Program{
		{Name: "Sehat Sahulat", LikelyEligible: true, Reason: "Low income household"},
		{Name: "Maternal Voucher", LikelyEligible: false, Reason: "Not in target group"},
	}
	state.Reminders = []models.Reminder{
		{Message: "Follow-up after triage result: clinic", ScheduledAt: testClock().Add(72 * time.Hour)},
	}
	p.finalize(context.Background(), state)

	if !state.Done {
		t.Error("finalize must mark the turn done")
	}
	for _, want := range []string{
		"Triage level: clinic.",
		"Persistent fever needs assessment",
		"Urgency: Visit a clinic within 24 hours.",
		"Suggested facilities:",
		"• RHC Model Town (clinic) - Open",
		"• DHQ Hospital (hospital) - Closed",
		"Program matches:",
		"• Sehat Sahulat: Eligible - Low income household",
		"• Maternal Voucher: Review - Not in target group",
		"Reminders set:",
		"• Follow-up after triage result: clinic on 2025-06-04T12:00:00Z",
		SafetyDisclaimer,
	} {
		if !strings.Contains(state.Reply, want) {
			t.Errorf("reply missing %q\nreply:\n%s", want, state.Reply)
		}
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Sender != "assistant" || last.Content != state.Reply {
		t.Errorf("reply not appended as assistant message: %+v", last)
	}
}

func TestFinalizeOmitsEmptySections(t *testing.T) {
	p := NewPipeline(&mockBackend{}, nil, nil, WithClock(testClock))

	state := newTestState("")
	state.TriageResult = &models.TriageResult{
		Level:              models.TriageLevelSelfCare,
		Reason:             "Monitor at home",
		RecommendedUrgency: "Monitor",
	}
	p.finalize(context.Background(), state)

	for _, section := range []string{"Suggested facilities:", "Program matches:", "Reminders set:"} {
		if strings.Contains(state.Reply, section) {
			t.Errorf("reply should omit %q when its list is empty", section)
		}
	}
	if !strings.HasSuffix(state.Reply, SafetyDisclaimer) {
		t.Error("reply should end with the safety disclaimer")
	}
	if strings.Contains(state.Reply, "\n\n\n") {
		t.Error("empty parts should not leave blank separators")
	}
}

func TestFinalizeWithoutTriageResult(t *testing.T) {
	p := NewPipeline(&mockBackend{}, nil, nil, WithClock(testClock))

	state := newTestState("")
	p.finalize(context.Background(), state)

	if !strings.Contains(state.Reply, "Triage level: self-care.") {
		t.Errorf("missing triage result should default to self-care, got:\n%s", state.Reply)
	}
	if !strings.Contains(state.Reply, "Urgency: Monitor.") {
		t.Error("missing triage result should default urgency to Monitor")
	}
}

func TestFinalizeReplyIsDeterministic(t *testing.T) {
	p := NewPipeline(&mockBackend{}, nil, nil, WithClock(testClock))

	state := newTestState("")
	state.TriageResult = &models.TriageResult{
		Level:              models.TriageLevelEmergency,
		Reason:             "Red flag detected: unconscious",
		RecommendedUrgency: "Immediate emergency evaluation",
	}
	state.Reminders = []models.Reminder{
		{Message: "Follow-up after triage result: emergency", ScheduledAt: testClock().Add(24 * time.Hour)},
	}
	p.finalize(context.Background(), state)
	first := state.Reply

	p.finalize(context.Background(), state)
	if state.Reply != first {
		t.Errorf("re-running finalize on unchanged inputs changed the reply:\n%s\nvs\n%s", first, state.Reply)
	}
}

func TestFinalizeCapsProgramsAndReminders(t *testing.T) {
	p := NewPipeline(&mockBackend{}, nil, nil, WithClock(testClock))

	state := newTestState("")
	state.TriageResult = &models.TriageResult{Level: models.TriageLevelClinic, Reason: "r", RecommendedUrgency: "u"}
	for i := 0; i < 5; i++ {
		state.ProgramEligibility = append(state.ProgramEligibility, models.Program{
			Name: fmt.Sprintf("Program %d", i), Reason: "r",
		})
		state.Reminders = append(state.Reminders, models.Reminder{
			Message: fmt.Sprintf("Reminder %d", i), ScheduledAt: testClock(),
		})
	}
	p.finalize(context.Background(), state)

	if got := strings.Count(state.Reply, "• Program "); got != maxReplyPrograms {
		t.Errorf("reply lists %d programs, want %d", got, maxReplyPrograms)
	}
	if got := strings.Count(state.Reply, "• Reminder "); got != maxReplyReminders {
		t.Errorf("reply lists %d reminders, want %d", got, maxReplyReminders)
	}
	// The newest reminders are the ones shown.
	if !strings.Contains(state.Reply, "Reminder 4") || !strings.Contains(state.Reply, "Reminder 3") {
		t.Error("reply should show the most recent reminders")
	}
}
