package services

import (
	"regexp"
	"strings"

	"github.com/reconlab/recon-engine/pkg/models"
)

// QueryClassifier assigns a query type and operation to a definition using
// keyword lexicons. Rule-based and deterministic.
type QueryClassifier interface {
	Classify(text string) (queryType, operation string)
}

type queryClassifier struct{}

var _ QueryClassifier = (*queryClassifier)(nil)

// NewQueryClassifier creates the keyword classifier.
func NewQueryClassifier() QueryClassifier {
	return &queryClassifier{}
}

var (
	comparisonKeywords  = []string{"not in", "missing", "mismatch", "unmatched", "difference"}
	aggregationKeywords = []string{"count", "sum", "average", "total", "group by", "statistics"}
	filterKeywords      = []string{"where", "with", "active", "inactive", "status", "contains"}

	tokenPattern = regexp.MustCompile(`[a-z]+`)
)

// Classify maps a definition to (query_type, operation). Comparison beats
// aggregation beats filter; everything else is a data query.
func (c *queryClassifier) Classify(text string) (string, string) {
	lower := strings.ToLower(text)
	tokens := tokenPattern.FindAllString(lower, -1)

	if op, ok := comparisonOperation(lower, tokens); ok {
		return models.QueryTypeComparison, op
	}
	if op, ok := aggregationOperation(lower); ok {
		return models.QueryTypeAggregation, op
	}
	if containsAny(lower, tokens, filterKeywords) {
		if containsKeyword(lower, tokens, "contains") {
			return models.QueryTypeFilter, models.OperationContains
		}
		return models.QueryTypeFilter, models.OperationEquals
	}
	return models.QueryTypeData, ""
}

// comparisonOperation detects set-membership wording. "not" before "in"
// (or any absence keyword) means NOT_IN; a bare "in" between table mentions
// means IN.
func comparisonOperation(lower string, tokens []string) (string, bool) {
	for _, kw := range comparisonKeywords {
		if containsKeyword(lower, tokens, kw) {
			return models.OperationNotIn, true
		}
	}
	// "in" only counts as a whole token so "inactive" does not classify.
	for i, tok := range tokens {
		if tok != "in" {
			continue
		}
		if i > 0 && tokens[i-1] == "not" {
			return models.OperationNotIn, true
		}
		return models.OperationIn, true
	}
	return "", false
}

func aggregationOperation(lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "count"):
		return models.OperationCount, true
	case strings.Contains(lower, "average"):
		return models.OperationAvg, true
	case strings.Contains(lower, "sum"), strings.Contains(lower, "total"):
		return models.OperationSum, true
	case strings.Contains(lower, "group by"), strings.Contains(lower, "statistics"):
		return models.OperationAggregate, true
	}
	return "", false
}

func containsAny(lower string, tokens []string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(lower, tokens, kw) {
			return true
		}
	}
	return false
}

// containsKeyword matches multi-word keywords as substrings and single words
// as whole tokens.
func containsKeyword(lower string, tokens []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	for _, tok := range tokens {
		if tok == kw {
			return true
		}
	}
	return false
}
