package sqlgen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/apperrors"
	"github.com/reconlab/recon-engine/pkg/models"
)

// JoinResolver supplies the join column pair for one hop of a join path.
// Implemented by kg.JoinPlanner.
type JoinResolver interface {
	JoinCondition(table1, table2 string) (string, string, bool)
}

// Generator emits SQL for one dialect.
type Generator struct {
	dialect Dialect
	logger  *zap.Logger
}

// NewGenerator creates a generator for the dialect.
func NewGenerator(dialect Dialect, logger *zap.Logger) *Generator {
	return &Generator{
		dialect: dialect,
		logger:  logger.Named("sqlgen"),
	}
}

// Dialect returns the generator's dialect.
func (g *Generator) Dialect() Dialect {
	return g.dialect
}

// Generate renders one intent into SQL. joins resolves hop conditions for
// additional-column paths and may be nil when the intent has none.
func (g *Generator) Generate(intent models.QueryIntent, joins JoinResolver) (string, error) {
	if intent.SourceTable == "" {
		return "", fmt.Errorf("intent has no source table: %w", apperrors.ErrInvalidRequest)
	}
	for _, f := range intent.Filters {
		if models.IsExcluded(f.Column) {
			return "", fmt.Errorf("filter column %s is excluded: %w", f.Column, apperrors.ErrInvalidRequest)
		}
		if err := screenFilterValue(f.Column, f.Value); err != nil {
			return "", err
		}
	}

	switch intent.QueryType {
	case models.QueryTypeComparison:
		return g.comparisonSQL(intent, joins)
	case models.QueryTypeFilter:
		return g.filterSQL(intent)
	case models.QueryTypeAggregation:
		return g.aggregationSQL(intent)
	default:
		return g.dataSQL(intent)
	}
}

// comparisonSQL renders IN as an INNER JOIN and NOT_IN as a LEFT JOIN with an
// IS NULL guard on the first target join column.
func (g *Generator) comparisonSQL(intent models.QueryIntent, joins JoinResolver) (string, error) {
	if intent.TargetTable == "" {
		return "", fmt.Errorf("comparison query has no target table: %w", apperrors.ErrInvalidRequest)
	}
	if len(intent.JoinColumns) == 0 {
		return "", fmt.Errorf("no join columns between %s and %s: %w",
			intent.SourceTable, intent.TargetTable, apperrors.ErrNoJoinPath)
	}
	for _, jc := range intent.JoinColumns {
		if models.IsExcluded(jc.SourceColumn) || models.IsExcluded(jc.TargetColumn) {
			return "", fmt.Errorf("join column is excluded: %w", apperrors.ErrInvalidRequest)
		}
	}

	aliases := newAliasSet(intent.SourceTable, intent.TargetTable)

	extraProjections, extraJoins, err := g.additionalColumnClauses(intent, joins, aliases)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT s.*")
	for _, p := range extraProjections {
		sb.WriteString(", ")
		sb.WriteString(p)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(g.dialect.Quote(intent.SourceTable))
	sb.WriteString(" s ")

	if intent.Operation == models.OperationNotIn {
		sb.WriteString("LEFT JOIN ")
	} else {
		sb.WriteString("INNER JOIN ")
	}
	sb.WriteString(g.dialect.Quote(intent.TargetTable))
	sb.WriteString(" t ON ")
	sb.WriteString(g.joinConditions("s", "t", intent.JoinColumns))

	for _, j := range extraJoins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}

	var predicates []string
	if intent.Operation == models.OperationNotIn {
		predicates = append(predicates,
			fmt.Sprintf("t.%s IS NULL", g.dialect.Quote(intent.JoinColumns[0].TargetColumn)))
	}
	predicates = append(predicates, g.filterPredicates(intent)...)
	if len(predicates) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(predicates, " AND "))
	}

	return g.dialect.ApplyLimit(sb.String(), intent.Limit), nil
}

func (g *Generator) filterSQL(intent models.QueryIntent) (string, error) {
	var sb strings.Builder
	sb.WriteString("SELECT s.* FROM ")
	sb.WriteString(g.dialect.Quote(intent.SourceTable))
	sb.WriteString(" s")

	if predicates := g.filterPredicates(intent); len(predicates) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(predicates, " AND "))
	}
	return g.dialect.ApplyLimit(sb.String(), intent.Limit), nil
}

// aggregationSQL renders COUNT(*) style aggregates. SUM and AVG need a column
// to aggregate, taken from the first additional column. Aggregates carry no
// row limit.
func (g *Generator) aggregationSQL(intent models.QueryIntent) (string, error) {
	var expr string
	switch intent.Operation {
	case models.OperationSum, models.OperationAvg:
		if len(intent.AdditionalColumns) == 0 {
			return "", fmt.Errorf("%s aggregation needs a column: %w", intent.Operation, apperrors.ErrInvalidRequest)
		}
		col := intent.AdditionalColumns[0].ColumnName
		if models.IsExcluded(col) {
			return "", fmt.Errorf("aggregation column %s is excluded: %w", col, apperrors.ErrInvalidRequest)
		}
		fn := "SUM"
		if intent.Operation == models.OperationAvg {
			fn = "AVG"
		}
		expr = fmt.Sprintf("%s(s.%s)", fn, g.dialect.Quote(col))
	default:
		expr = "COUNT(*)"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(expr)
	sb.WriteString(" FROM ")
	sb.WriteString(g.dialect.Quote(intent.SourceTable))
	sb.WriteString(" s")

	if predicates := g.filterPredicates(intent); len(predicates) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(predicates, " AND "))
	}
	return sb.String(), nil
}

func (g *Generator) dataSQL(intent models.QueryIntent) (string, error) {
	return g.filterSQL(intent)
}

// filterPredicates renders intent filters. Comparison queries attach filters
// to the joined side (alias t); everything else filters the source (alias s).
func (g *Generator) filterPredicates(intent models.QueryIntent) []string {
	var out []string
	for _, f := range intent.Filters {
		alias := "s"
		if intent.QueryType == models.QueryTypeComparison &&
			(f.TableHint == "" || strings.EqualFold(f.TableHint, intent.TargetTable)) {
			alias = "t"
		}
		comparator := f.Comparator
		if comparator == "" {
			comparator = "="
		}
		out = append(out, fmt.Sprintf("%s.%s %s %s",
			alias, g.dialect.Quote(f.Column), comparator, QuoteValue(f.Value)))
	}
	return out
}

func (g *Generator) joinConditions(leftAlias, rightAlias string, pairs []models.JoinColumnPair) string {
	conds := make([]string, 0, len(pairs))
	for _, jc := range pairs {
		conds = append(conds, fmt.Sprintf("%s.%s = %s.%s",
			leftAlias, g.dialect.Quote(jc.SourceColumn),
			rightAlias, g.dialect.Quote(jc.TargetColumn)))
	}
	return strings.Join(conds, " AND ")
}

// additionalColumnClauses emits LEFT JOINs along each additional column's
// pre-computed join path plus the aliased projection. Projections with no
// path, no hop condition, or an excluded column are dropped with a warning;
// joins are never fabricated.
func (g *Generator) additionalColumnClauses(intent models.QueryIntent, joins JoinResolver, aliases *aliasSet) ([]string, []string, error) {
	var projections, joinClauses []string

	for _, extra := range intent.AdditionalColumns {
		if models.IsExcluded(extra.ColumnName) {
			g.logger.Warn("dropping excluded additional column",
				zap.String("table", extra.Table),
				zap.String("column", extra.ColumnName))
			continue
		}
		if len(extra.JoinPath) < 2 {
			g.logger.Warn("dropping additional column without join path",
				zap.String("table", extra.Table),
				zap.String("column", extra.ColumnName))
			continue
		}
		if joins == nil {
			g.logger.Warn("dropping additional column: no join resolver",
				zap.String("table", extra.Table))
			continue
		}

		ok := true
		for i := 1; i < len(extra.JoinPath); i++ {
			prev, curr := extra.JoinPath[i-1], extra.JoinPath[i]
			if strings.EqualFold(prev, curr) {
				continue
			}
			if _, joined := aliases.lookup(curr); joined {
				continue
			}
			srcCol, tgtCol, found := joins.JoinCondition(prev, curr)
			if !found {
				g.logger.Warn("dropping additional column: no hop condition",
					zap.String("from", prev),
					zap.String("to", curr))
				ok = false
				break
			}
			if models.IsExcluded(srcCol) || models.IsExcluded(tgtCol) {
				ok = false
				break
			}
			prevAlias, _ := aliases.lookup(prev)
			currAlias := aliases.assign(curr)
			joinClauses = append(joinClauses, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
				g.dialect.Quote(curr), currAlias,
				prevAlias, g.dialect.Quote(srcCol),
				currAlias, g.dialect.Quote(tgtCol)))
		}
		if !ok {
			continue
		}

		tableAlias, joined := aliases.lookup(extra.Table)
		if !joined {
			continue
		}
		columnAlias := extra.Alias
		if columnAlias == "" {
			columnAlias = extra.Table + "_" + extra.ColumnName
		}
		projections = append(projections, fmt.Sprintf("%s.%s AS %s",
			tableAlias, g.dialect.Quote(extra.ColumnName), g.dialect.Quote(columnAlias)))
	}
	return projections, joinClauses, nil
}

// aliasSet assigns table aliases for join clauses: the source is always s,
// the target t, and each further table takes the first letter of its final
// name segment (hana_material_master joins as m), suffixed on collision.
type aliasSet struct {
	byTable map[string]string
	used    map[string]struct{}
}

func newAliasSet(sourceTable, targetTable string) *aliasSet {
	a := &aliasSet{
		byTable: make(map[string]string),
		used:    map[string]struct{}{"s": {}, "t": {}},
	}
	a.byTable[strings.ToLower(sourceTable)] = "s"
	if targetTable != "" {
		a.byTable[strings.ToLower(targetTable)] = "t"
	}
	return a
}

func (a *aliasSet) lookup(table string) (string, bool) {
	alias, ok := a.byTable[strings.ToLower(table)]
	return alias, ok
}

func (a *aliasSet) assign(table string) string {
	if alias, ok := a.lookup(table); ok {
		return alias
	}
	segments := strings.Split(strings.ToLower(table), "_")
	base := "j"
	if last := segments[len(segments)-1]; last != "" {
		base = last[:1]
	}
	alias := base
	for i := 2; ; i++ {
		if _, taken := a.used[alias]; !taken {
			break
		}
		alias = fmt.Sprintf("%s%d", base, i)
	}
	a.used[alias] = struct{}{}
	a.byTable[strings.ToLower(table)] = alias
	return alias
}
