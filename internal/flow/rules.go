package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "embed"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// SafetyDisclaimer is appended to every triage result and reply.
const SafetyDisclaimer = "This is a decision-support tool, not a doctor. In case of severe symptoms or doubt, go to the nearest emergency facility immediately."

// redFlagPhrases force an emergency classification under rule-based triage,
// independent of the rule table. This safety override runs only on the
// rule-based path; a successful model classification is trusted as-is.
var redFlagPhrases = []string{
	"difficulty breathing",
	"unconscious",
	"pregnancy bleeding",
	"convulsion",
}

// TriageRule maps a message keyword to a triage classification.
type TriageRule struct {
	Keyword            string             `json:"keyword"`
	Level              models.TriageLevel `json:"level"`
	Reason             string             `json:"reason"`
	RecommendedUrgency string             `json:"recommendedUrgency"`
	Disclaimer         string             `json:"disclaimer,omitempty"`
}

// RuleTable is the ordered keyword table for deterministic triage. Rules are
// scanned in order and the first keyword found as a substring wins.
type RuleTable struct {
	Rules   []TriageRule `json:"rules"`
	Default *TriageRule  `json:"default,omitempty"`
}

//go:embed triage_rules.json
var defaultRulesJSON []byte

// DefaultRuleTable returns the embedded rule table.
func DefaultRuleTable() *RuleTable {
	var table RuleTable
	if err := json.Unmarshal(defaultRulesJSON, &table); err != nil {
		// The embedded table is validated by tests; reaching this means a
		// broken build artifact.
		panic(fmt.Sprintf("embedded triage rules are invalid: %v", err))
	}
	return &table
}

// LoadRuleTable reads a rule table from a JSON file.
func LoadRuleTable(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read triage rules file: %w", err)
	}
	var table RuleTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse triage rules file %s: %w", path, err)
	}
	return &table, nil
}

// ruleBasedTriage classifies a message deterministically: red-flag phrases
// first, then the ordered keyword table, then the table's default entry,
// then a hardcoded self-care default.
func (p *Pipeline) ruleBasedTriage(message string) *models.TriageResult {
	text := strings.ToLower(message)

	for _, flag := range redFlagPhrases {
		if strings.Contains(text, flag) {
			return &models.TriageResult{
				Level:              models.TriageLevelEmergency,
				Reason:             fmt.Sprintf("Red flag detected: %s", flag),
				RecommendedUrgency: "Immediate emergency evaluation",
				Disclaimer:         SafetyDisclaimer,
			}
		}
	}

	if p.rules != nil {
		for _, rule := range p.rules.Rules {
			if rule.Keyword != "" && strings.Contains(text, strings.ToLower(rule.Keyword)) {
				return resultFromRule(rule)
			}
		}
		if p.rules.Default != nil {
			return resultFromRule(*p.rules.Default)
		}
	}

	return &models.TriageResult{
		Level:              models.TriageLevelSelfCare,
		Reason:             "Monitor at home",
		RecommendedUrgency: "Monitor",
		Disclaimer:         SafetyDisclaimer,
	}
}

// resultFromRule builds a triage result from a rule entry, filling defaults
// for absent fields.
func resultFromRule(rule TriageRule) *models.TriageResult {
	result := &models.TriageResult{
		Level:              rule.Level,
		Reason:             rule.Reason,
		RecommendedUrgency: rule.RecommendedUrgency,
		Disclaimer:         rule.Disclaimer,
	}
	if !models.IsValidTriageLevel(result.Level) {
		result.Level = models.TriageLevelSelfCare
	}
	if result.Reason == "" {
		result.Reason = "Monitor at home"
	}
	if result.RecommendedUrgency == "" {
		result.RecommendedUrgency = "Monitor"
	}
	if result.Disclaimer == "" {
		result.Disclaimer = SafetyDisclaimer
	}
	return result
}
