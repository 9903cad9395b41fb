// Package flow implements the conversation orchestration pipeline for
// TriagePipe.
//
// A pipeline run executes seven stages in fixed order against one shared
// ConversationState: ingest, triage, facility finder, program eligibility,
// follow-up, analytics, finalize. Stages are individually resilient: a
// collaborator failure latches degraded_mode and substitutes a synthetic
// fallback value instead of aborting the turn. The only terminal failures
// are pipeline-integrity errors (missing required state fields, step
// ceiling exceeded).
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/connectedhealth/triagepipe/internal/genai"
	"github.com/connectedhealth/triagepipe/internal/models"
)

// DefaultMaxSteps bounds the number of stage executions per turn. The stage
// chain has depth 7, so the ceiling is never hit in normal operation; it is
// a safety net against future branching or recursion.
const DefaultMaxSteps = 8

// DefaultRetrievalTopK is the number of knowledge snippets retrieved for triage.
const DefaultRetrievalTopK = 4

// Pipeline integrity errors surfaced to the caller as terminal turn failures.
var (
	ErrNilState            = errors.New("initial state is nil")
	ErrMissingSessionID    = errors.New("initial state missing session_id")
	ErrMissingUserRole     = errors.New("initial state missing or invalid user_role")
	ErrStepCeilingExceeded = errors.New("pipeline step ceiling exceeded")
)

// BackendService defines the health backend operations the pipeline depends on.
type BackendService interface {
	// Health probes backend system health.
	Health(ctx context.Context) (models.HealthStatus, error)

	// SearchFacilities queries nearby care facilities.
	SearchFacilities(ctx context.Context, req models.FacilitySearchRequest) ([]models.Facility, error)

	// ProgramEligibility queries assistance-program eligibility.
	ProgramEligibility(ctx context.Context, req models.EligibilityRequest) ([]models.Program, error)

	// CreateReminder schedules a reminder with the backend.
	CreateReminder(ctx context.Context, req models.ReminderRequest) (models.Reminder, error)

	// LogInteraction records an agent interaction; fire-and-forget.
	LogInteraction(ctx context.Context, entry models.InteractionLog)

	// LogToolCall records a tool invocation; fire-and-forget.
	LogToolCall(ctx context.Context, entry models.ToolCallLog)
}

// KnowledgeRetriever returns knowledge snippets relevant to a message.
type KnowledgeRetriever interface {
	Query(ctx context.Context, text string, topK int) ([]models.KnowledgeMatch, error)
}

// Opts holds pipeline configuration.
type Opts struct {
	Rules    *RuleTable
	MaxSteps int
	TopK     int
	Now      func() time.Time
}

// Option configures the pipeline.
type Option func(*Opts)

// WithRules overrides the rule table used for deterministic triage.
func WithRules(rules *RuleTable) Option {
	return func(o *Opts) { o.Rules = rules }
}

// WithMaxSteps overrides the stage execution ceiling.
func WithMaxSteps(n int) Option {
	return func(o *Opts) { o.MaxSteps = n }
}

// WithRetrievalTopK overrides the number of knowledge snippets retrieved.
func WithRetrievalTopK(n int) Option {
	return func(o *Opts) { o.TopK = n }
}

// WithClock injects a clock; used in tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// stage is one step of the pipeline. Stages mutate state in place and are
// designed to never fail: collaborator errors are recovered internally.
type stage struct {
	name string
	run  func(ctx context.Context, state *models.ConversationState)
}

// Pipeline executes the conversation turn stages against a shared state.
type Pipeline struct {
	backend   BackendService
	retriever KnowledgeRetriever
	genai     genai.ClientInterface
	rules     *RuleTable
	maxSteps  int
	topK      int
	now       func() time.Time
	stages    []stage
}

// NewPipeline creates a pipeline with the given collaborators. The retriever
// and genai client may be nil; the pipeline then degrades to deterministic
// triage without retrieval context.
func NewPipeline(backend BackendService, retriever KnowledgeRetriever, genaiClient genai.ClientInterface, opts ...Option) *Pipeline {
	cfg := Opts{
		Rules:    DefaultRuleTable(),
		MaxSteps: DefaultMaxSteps,
		TopK:     DefaultRetrievalTopK,
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pipeline{
		backend:   backend,
		retriever: retriever,
		genai:     genaiClient,
		rules:     cfg.Rules,
		maxSteps:  cfg.MaxSteps,
		topK:      cfg.TopK,
		now:       cfg.Now,
	}
	p.stages = []stage{
		{name: "ingest", run: p.ingest},
		{name: "triage", run: p.triage},
		{name: "facility_finder", run: p.facilityFinder},
		{name: "program_eligibility", run: p.programEligibility},
		{name: "follow_up", run: p.followUp},
		{name: "analytics", run: p.analytics},
		{name: "finalize", run: p.finalize},
	}
	return p
}

// Run executes all stages in order against the given state and returns the
// final state. It fails only on pipeline-integrity errors; collaborator
// failures are absorbed by the stages.
func (p *Pipeline) Run(ctx context.Context, state *models.ConversationState) (*models.ConversationState, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if state.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	if !models.IsValidUserRole(state.UserRole) {
		return nil, fmt.Errorf("%w: %q", ErrMissingUserRole, state.UserRole)
	}

	steps := 0
	for _, st := range p.stages {
		steps++
		if steps > p.maxSteps {
			slog.Error("flow.Run: step ceiling exceeded", "session_id", state.SessionID, "steps", steps, "ceiling", p.maxSteps)
			return state, fmt.Errorf("%w: %d stages exceed ceiling %d", ErrStepCeilingExceeded, steps, p.maxSteps)
		}
		slog.Debug("flow.Run: executing stage", "stage", st.name, "session_id", state.SessionID, "degraded", state.DegradedMode)
		st.run(ctx, state)
	}

	slog.Info("flow.Run: turn complete", "session_id", state.SessionID, "degraded", state.DegradedMode, "triage_level", triageLevel(state))
	return state, nil
}

// triageLevel extracts the classified level for logging, empty when unset.
func triageLevel(state *models.ConversationState) string {
	if state.TriageResult == nil {
		return ""
	}
	return string(state.TriageResult.Level)
}
