package models

import "time"

// Match types for reconciliation rules.
const (
	MatchTypeExact          = "exact"
	MatchTypeFuzzy          = "fuzzy"
	MatchTypeSemantic       = "semantic"
	MatchTypePattern        = "pattern"
	MatchTypeComposite      = "composite"
	MatchTypeTransformation = "transformation"
)

// ValidMatchTypes contains all valid match type values.
var ValidMatchTypes = []string{
	MatchTypeExact,
	MatchTypeFuzzy,
	MatchTypeSemantic,
	MatchTypePattern,
	MatchTypeComposite,
	MatchTypeTransformation,
}

// IsValidMatchType checks if the given match type is valid.
func IsValidMatchType(t string) bool {
	for _, v := range ValidMatchTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Validation statuses assigned to generated rules.
const (
	ValidationValid     = "VALID"
	ValidationLikely    = "LIKELY"
	ValidationUncertain = "UNCERTAIN"
)

// ReconciliationRule pairs column lists across two tables with a match type
// and confidence, used to compute matched/unmatched record sets.
type ReconciliationRule struct {
	RuleID           string    `json:"rule_id"`
	RuleName         string    `json:"rule_name"`
	SourceSchema     string    `json:"source_schema"`
	SourceTable      string    `json:"source_table"`
	SourceColumns    []string  `json:"source_columns"`
	TargetSchema     string    `json:"target_schema"`
	TargetTable      string    `json:"target_table"`
	TargetColumns    []string  `json:"target_columns"`
	MatchType        string    `json:"match_type"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning,omitempty"`
	ValidationStatus string    `json:"validation_status"`
	LLMGenerated     bool      `json:"llm_generated"`
	CreatedAt        time.Time `json:"created_at"`
}

// DedupKey identifies a rule for duplicate suppression across the pattern and
// LLM generation paths.
func (r *ReconciliationRule) DedupKey() string {
	key := r.SourceTable + "|"
	for _, c := range r.SourceColumns {
		key += c + ","
	}
	key += "|" + r.TargetTable + "|"
	for _, c := range r.TargetColumns {
		key += c + ","
	}
	return key + "|" + r.MatchType
}

// Ruleset is a bundle of rules generated from one KG+schemas input.
// Rulesets are immutable after creation; re-generate to change.
type Ruleset struct {
	RulesetID string               `json:"ruleset_id"`
	Name      string               `json:"name"`
	KGName    string               `json:"kg_name"`
	Schemas   []string             `json:"schemas"`
	Rules     []ReconciliationRule `json:"rules"`
	CreatedAt time.Time            `json:"created_at"`
}

// FieldPreference carries per-table user hints that steer rule generation.
// The HTTP boundary adapts free-form maps into this typed form; internal code
// operates on the typed form only.
type FieldPreference struct {
	PriorityFields map[string][]string          `json:"priority_fields,omitempty"`
	ExcludeFields  map[string][]string          `json:"exclude_fields,omitempty"`
	FieldHints     map[string]map[string]string `json:"field_hints,omitempty"`
}

// IsExcludedForTable reports whether a column was excluded for a table by the
// user (distinct from the global excluded-field set).
func (p *FieldPreference) IsExcludedForTable(table, column string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.ExcludeFields[table] {
		if c == column {
			return true
		}
	}
	return false
}

// PriorityFor returns the user's priority fields for a table, or nil.
func (p *FieldPreference) PriorityFor(table string) []string {
	if p == nil {
		return nil
	}
	return p.PriorityFields[table]
}
