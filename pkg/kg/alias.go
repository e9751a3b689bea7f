package kg

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/prompts"
)

// fuzzyMatchThreshold is the minimum normalized token similarity for a fuzzy
// alias match.
const fuzzyMatchThreshold = 0.6

// Alias provenance confidences. LLM-derived alias sets outrank heuristic ones;
// relearning only overwrites a table's aliases at equal or higher confidence.
const (
	AliasConfidenceLLM       = 0.9
	AliasConfidenceHeuristic = 0.6
)

// technicalPrefixes are layer/medallion tokens stripped when deriving aliases
// heuristically (brz_lnd_RBP_GPU -> RBP, RBP GPU).
var technicalPrefixes = map[string]struct{}{
	"brz": {}, "slv": {}, "gld": {}, "lnd": {}, "stg": {}, "raw": {},
	"tbl": {}, "tmp": {}, "vw": {}, "dim": {}, "fct": {}, "fact": {},
	"src": {}, "tgt": {}, "ods": {}, "dwh": {}, "ref": {},
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// AliasLearner derives human-friendly aliases for tables, LLM-first with a
// deterministic token-splitting fallback.
type AliasLearner struct {
	client llm.Client // nil means heuristic-only
	logger *zap.Logger
}

// NewAliasLearner creates a learner. client may be nil.
func NewAliasLearner(client llm.Client, logger *zap.Logger) *AliasLearner {
	return &AliasLearner{
		client: client,
		logger: logger.Named("alias"),
	}
}

// Learn returns 0..N aliases for the table plus the confidence of the set
// (AliasConfidenceLLM or AliasConfidenceHeuristic). LLM failures degrade to
// the heuristic; the error return is reserved for context cancellation.
func (l *AliasLearner) Learn(ctx context.Context, table *models.Table) ([]string, float64, error) {
	if l.client != nil {
		aliases, err := l.learnWithLLM(ctx, table)
		if err == nil {
			return aliases, AliasConfidenceLLM, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		l.logger.Warn("LLM alias learning failed, using heuristic",
			zap.String("table", table.Name),
			zap.Error(err))
	}
	return HeuristicAliases(table.Name), AliasConfidenceHeuristic, nil
}

func (l *AliasLearner) learnWithLLM(ctx context.Context, table *models.Table) ([]string, error) {
	prompt := prompts.BuildAliasPrompt(table.Name, table.Description, table.ColumnNames())
	response, err := l.client.GenerateResponse(ctx, prompt, prompts.AliasSystemMessage)
	if err != nil {
		return nil, err
	}

	raw, err := llm.ParseJSONResponse[[]string](response)
	if err != nil {
		return nil, err
	}

	return dedupeAliases(table.Name, raw), nil
}

// HeuristicAliases splits the table name on underscores and case boundaries,
// drops technical layer prefixes, and emits the leading significant token and
// the significant tokens joined with spaces.
func HeuristicAliases(tableName string) []string {
	tokens := splitNameTokens(tableName)

	significant := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := technicalPrefixes[strings.ToLower(tok)]; ok && len(significant) == 0 {
			continue
		}
		significant = append(significant, tok)
	}
	if len(significant) == 0 {
		return nil
	}

	candidates := []string{significant[0], strings.Join(significant, " ")}
	return dedupeAliases(tableName, candidates)
}

// splitNameTokens splits on underscores and lower-to-upper case boundaries.
func splitNameTokens(name string) []string {
	var tokens []string
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		start := 0
		for i := 1; i < len(part); i++ {
			if isLower(part[i-1]) && isUpper(part[i]) {
				tokens = append(tokens, part[start:i])
				start = i
			}
		}
		tokens = append(tokens, part[start:])
	}
	return tokens
}

func isLower(c byte) bool { return 'a' <= c && c <= 'z' }
func isUpper(c byte) bool { return 'A' <= c && c <= 'Z' }

// dedupeAliases drops empties, duplicates (case-insensitive), and the
// canonical label itself (always accepted implicitly by the resolver).
func dedupeAliases(tableName string, candidates []string) []string {
	seen := map[string]struct{}{strings.ToLower(tableName): {}}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// AliasResolver maps free-form business terms to table labels over one KG
// snapshot. Resolution over the same snapshot is deterministic.
type AliasResolver struct {
	labels  []string            // sorted table labels
	aliases map[string][]string // label -> aliases
}

// NewAliasResolver builds a resolver from a graph snapshot.
func NewAliasResolver(kg *models.KnowledgeGraph) *AliasResolver {
	labels := kg.TableLabels()
	sort.Strings(labels)
	return &AliasResolver{
		labels:  labels,
		aliases: kg.TableAliases,
	}
}

// Resolve returns the best table label for a term, or "" when no candidate
// meets the thresholds. Stages: exact label match, exact alias match, fuzzy
// token similarity >= 0.6, then substring containment. Ties go to the most
// specific (longest) matching alias.
func (r *AliasResolver) Resolve(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}

	// Stage 1: exact case-insensitive label match.
	for _, label := range r.labels {
		if strings.EqualFold(label, term) {
			return label
		}
	}

	// Stage 2: exact case-insensitive alias match, longest alias wins.
	bestLabel, bestLen := "", 0
	for _, label := range r.labels {
		for _, alias := range r.aliases[label] {
			if strings.EqualFold(alias, term) && len(alias) > bestLen {
				bestLabel, bestLen = label, len(alias)
			}
		}
	}
	if bestLabel != "" {
		return bestLabel
	}

	// Stage 3: fuzzy token similarity.
	termTokens := normalizeTokens(term)
	bestLabel = ""
	bestScore := 0.0
	for _, label := range r.labels {
		score := tokenSimilarity(termTokens, normalizeTokens(label))
		for _, alias := range r.aliases[label] {
			if s := tokenSimilarity(termTokens, normalizeTokens(alias)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestLabel, bestScore = label, score
		}
	}
	if bestScore >= fuzzyMatchThreshold {
		return bestLabel
	}

	// Stage 4: substring containment after normalization.
	normTerm := normalizeFlat(term)
	bestLabel, bestLen = "", 0
	for _, label := range r.labels {
		candidates := append([]string{label}, r.aliases[label]...)
		for _, c := range candidates {
			norm := normalizeFlat(c)
			if norm == "" {
				continue
			}
			if strings.Contains(norm, normTerm) || strings.Contains(normTerm, norm) {
				if len(norm) > bestLen {
					bestLabel, bestLen = label, len(norm)
				}
			}
		}
	}
	return bestLabel
}

func normalizeTokens(s string) []string {
	flat := nonAlnumPattern.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Fields(flat)
}

func normalizeFlat(s string) string {
	return nonAlnumPattern.ReplaceAllString(strings.ToLower(s), "")
}

// tokenSimilarity is the Dice coefficient over token sets.
func tokenSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	matches := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := setA[t]; ok {
			matches++
		}
	}
	return float64(2*matches) / float64(len(setA)+len(seen))
}
