package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/connectedhealth/triagepipe/internal/genai"
	"github.com/connectedhealth/triagepipe/internal/models"
	"github.com/connectedhealth/triagepipe/internal/util"
)

// classificationSchema is the strict contract for the model's triage
// classification object. Validation failure is a recoverable variant that
// feeds the rule-based fallback, not a turn-level error.
const classificationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["level", "reason", "recommendedUrgency"],
  "properties": {
    "level": {"type": "string", "enum": ["self-care", "clinic", "emergency"]},
    "reason": {"type": "string", "minLength": 1},
    "recommendedUrgency": {"type": "string", "minLength": 1},
    "disclaimer": {"type": "string"}
  }
}`

var classificationValidator = jsonschema.MustCompileString("classification.json", classificationSchema)

// triage classifies the latest user message. It attempts a
// retrieval-augmented model classification when the turn is not degraded and
// a model is configured, falling back to deterministic rule-based triage
// otherwise. Taking the fallback path latches degraded_mode.
func (p *Pipeline) triage(ctx context.Context, state *models.ConversationState) {
	latest := state.LatestMessageContent()

	ragContext := p.retrieveContext(ctx, state, latest)

	var result *models.TriageResult
	if !state.DegradedMode && p.genai != nil && p.genai.Available() {
		result = p.classifyWithModel(ctx, state.SessionID, ragContext, latest)
	}
	if result == nil {
		result = p.ruleBasedTriage(latest)
		state.DegradedMode = true
	}
	if result.Disclaimer == "" {
		result.Disclaimer = SafetyDisclaimer
	}
	state.TriageResult = result

	level := result.Level
	state.NeedsFacility = level == models.TriageLevelClinic || level == models.TriageLevelEmergency
	state.NeedsPrograms = true
	state.NeedsFollowUp = level == models.TriageLevelClinic || level == models.TriageLevelEmergency

	p.backend.LogInteraction(ctx, models.InteractionLog{
		AgentName:     "triage",
		InputSummary:  util.TruncateString(latest, models.InteractionSummaryLimit),
		OutputSummary: util.TruncateString(result.Reason, models.InteractionSummaryLimit),
		TriageLevel:   string(level),
	})
}

// retrieveContext fetches knowledge snippets for the message. Empty text
// skips retrieval entirely; a retrieval failure latches degraded_mode and
// yields no context.
func (p *Pipeline) retrieveContext(ctx context.Context, state *models.ConversationState, text string) string {
	if p.retriever == nil || strings.TrimSpace(text) == "" {
		return ""
	}
	matches, err := p.retriever.Query(ctx, text, p.topK)
	if err != nil {
		slog.Warn("flow.triage: knowledge retrieval failed", "session_id", state.SessionID, "error", err)
		state.DegradedMode = true
		return ""
	}
	docs := make([]string, 0, len(matches))
	for _, match := range matches {
		docs = append(docs, match.Document)
	}
	return strings.Join(docs, "\n")
}

// classifyWithModel asks the generative model for a classification. Any call
// failure or malformed response is swallowed and reported as "no result".
func (p *Pipeline) classifyWithModel(ctx context.Context, sessionID, ragContext, message string) *models.TriageResult {
	prompt := buildTriagePrompt(ragContext, message)
	text, err := p.genai.Generate(ctx, prompt, genai.VariantSmart)
	if err != nil {
		slog.Warn("flow.triage: model call failed, falling back to rules", "session_id", sessionID, "error", err)
		return nil
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("flow.triage: model returned empty response", "session_id", sessionID)
		return nil
	}
	result, err := parseClassification(text)
	if err != nil {
		slog.Warn("flow.triage: model returned malformed classification", "session_id", sessionID, "error", err)
		return nil
	}
	return result
}

// buildTriagePrompt embeds the retrieved snippets and user message into the
// structured classification prompt.
func buildTriagePrompt(ragContext, message string) string {
	return "You are a clinical triage assistant for Pakistan. " +
		"Use the context below to classify the triage level as self-care, clinic, or emergency. " +
		"Respond with a JSON object containing level, reason, recommendedUrgency, and disclaimer." +
		fmt.Sprintf("\nContext:\n%s\nUser message:\n%s", ragContext, message)
}

// parseClassification extracts and validates the classification object from
// the model response. Responses wrapped in code fences or surrounding prose
// are unwrapped by slicing from the first '{' to the last '}'.
func parseClassification(text string) (*models.TriageResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("response contains no JSON object")
	}
	raw := text[start : end+1]

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := classificationValidator.Validate(payload); err != nil {
		return nil, fmt.Errorf("classification failed schema validation: %w", err)
	}

	var result models.TriageResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	return &result, nil
}
