package sqlgen

import (
	"fmt"
	"strings"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// ForRule renders the SQL for one reconciliation rule in one query mode.
// withSchemaPrefix controls the schema-prefixed form used on first attempts;
// the executor retries without the prefix on unknown-object errors. Rule
// queries carry no row limit: match counts must reflect the full result,
// and the record retention cap is applied while scanning.
func (g *Generator) ForRule(rule models.ReconciliationRule, mode string, withSchemaPrefix bool) (string, error) {
	if len(rule.SourceColumns) == 0 || len(rule.SourceColumns) != len(rule.TargetColumns) {
		return "", fmt.Errorf("rule %s has mismatched join columns: %w", rule.RuleID, apperrors.ErrInvalidRequest)
	}
	for i := range rule.SourceColumns {
		if models.IsExcluded(rule.SourceColumns[i]) || models.IsExcluded(rule.TargetColumns[i]) {
			return "", fmt.Errorf("rule %s references an excluded field: %w", rule.RuleID, apperrors.ErrInvalidRequest)
		}
	}

	source := g.dialect.QualifyTable(rule.SourceSchema, rule.SourceTable, withSchemaPrefix)
	target := g.dialect.QualifyTable(rule.TargetSchema, rule.TargetTable, withSchemaPrefix)

	pairs := make([]models.JoinColumnPair, len(rule.SourceColumns))
	for i := range rule.SourceColumns {
		pairs[i] = models.JoinColumnPair{
			SourceColumn: rule.SourceColumns[i],
			TargetColumn: rule.TargetColumns[i],
		}
	}

	var sb strings.Builder
	switch mode {
	case models.QueryModeMatched:
		sb.WriteString("SELECT DISTINCT s.* FROM ")
		sb.WriteString(source)
		sb.WriteString(" s INNER JOIN ")
		sb.WriteString(target)
		sb.WriteString(" t ON ")
		sb.WriteString(g.joinConditions("s", "t", pairs))
	case models.QueryModeUnmatchedSource:
		sb.WriteString("SELECT DISTINCT s.* FROM ")
		sb.WriteString(source)
		sb.WriteString(" s LEFT JOIN ")
		sb.WriteString(target)
		sb.WriteString(" t ON ")
		sb.WriteString(g.joinConditions("s", "t", pairs))
		sb.WriteString(" WHERE t.")
		sb.WriteString(g.dialect.Quote(rule.TargetColumns[0]))
		sb.WriteString(" IS NULL")
	case models.QueryModeUnmatchedTarget:
		swapped := make([]models.JoinColumnPair, len(pairs))
		for i, p := range pairs {
			swapped[i] = models.JoinColumnPair{SourceColumn: p.TargetColumn, TargetColumn: p.SourceColumn}
		}
		sb.WriteString("SELECT DISTINCT t.* FROM ")
		sb.WriteString(target)
		sb.WriteString(" t LEFT JOIN ")
		sb.WriteString(source)
		sb.WriteString(" s ON ")
		sb.WriteString(g.joinConditions("t", "s", swapped))
		sb.WriteString(" WHERE s.")
		sb.WriteString(g.dialect.Quote(rule.SourceColumns[0]))
		sb.WriteString(" IS NULL")
	default:
		return "", fmt.Errorf("unknown query mode %q: %w", mode, apperrors.ErrInvalidRequest)
	}

	return sb.String(), nil
}
