package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
)

func ruleGenSchemas() []*models.Schema {
	return []*models.Schema{
		{
			Name: "bronze",
			Tables: []models.Table{
				{
					Name: "brz_lnd_RBP_GPU",
					Columns: []models.Column{
						{Name: "material_id"},
						{Name: "quantity"},
						{Name: "Product_Line"},
					},
				},
			},
		},
		{
			Name: "hana",
			Tables: []models.Table{
				{
					Name: "hana_material_master",
					Columns: []models.Column{
						{Name: "id", PrimaryKey: true},
						{Name: "material_id"},
						{Name: "description"},
					},
				},
			},
		},
	}
}

func ruleGenStore(t *testing.T, edges []models.Relationship) *kg.Store {
	t.Helper()
	store := kg.NewStore(nil, zap.NewNop())
	graph := &models.KnowledgeGraph{
		Nodes: []models.Node{
			{ID: models.TableNodeID("brz_lnd_RBP_GPU"), Label: "brz_lnd_RBP_GPU", Kind: models.NodeKindTable},
			{ID: models.TableNodeID("hana_material_master"), Label: "hana_material_master", Kind: models.NodeKindTable},
		},
		Relationships: edges,
		Metadata:      models.KGMetadata{Name: "test"},
	}
	require.NoError(t, store.Put(graph))
	return store
}

func gpuMasterEdge() models.Relationship {
	return models.Relationship{
		SourceID:         models.TableNodeID("brz_lnd_RBP_GPU"),
		TargetID:         models.TableNodeID("hana_material_master"),
		RelationshipType: models.RelTypeCrossSchemaReference,
		SourceColumn:     "material_id",
		TargetColumn:     "id",
		Confidence:       0.85,
		Origin:           models.OriginAutoDetected,
	}
}

func TestGeneratePatternRules(t *testing.T) {
	store := ruleGenStore(t, []models.Relationship{gpuMasterEdge()})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, nil)
	require.NoError(t, err)

	assert.Regexp(t, `^RECON_[0-9a-f]{8}$`, ruleset.RulesetID)
	assert.Equal(t, []string{"bronze", "hana"}, ruleset.Schemas)
	require.Len(t, ruleset.Rules, 1)

	rule := ruleset.Rules[0]
	assert.Regexp(t, `^RULE_[0-9a-f]{8}$`, rule.RuleID)
	assert.Equal(t, "brz_lnd_RBP_GPU", rule.SourceTable)
	assert.Equal(t, "bronze", rule.SourceSchema)
	assert.Equal(t, []string{"material_id"}, rule.SourceColumns)
	assert.Equal(t, "hana_material_master", rule.TargetTable)
	assert.Equal(t, []string{"id"}, rule.TargetColumns)
	assert.Equal(t, models.MatchTypeExact, rule.MatchType)
	// Edge confidence above the pattern floor carries through.
	assert.Equal(t, 0.85, rule.Confidence)
	assert.Equal(t, models.ValidationLikely, rule.ValidationStatus)
	assert.False(t, rule.LLMGenerated)
}

func TestGenerateUsesPatternFloorForWeakEdges(t *testing.T) {
	edge := gpuMasterEdge()
	edge.Confidence = 0.6
	store := ruleGenStore(t, []models.Relationship{edge})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, ruleset.Rules, 1)
	assert.Equal(t, patternRuleConfidence, ruleset.Rules[0].Confidence)
}

func TestGenerateDropsExcludedColumnRules(t *testing.T) {
	edge := gpuMasterEdge()
	edge.SourceColumn = "Product_Line"
	store := ruleGenStore(t, []models.Relationship{edge})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, nil)
	require.NoError(t, err)
	assert.Empty(t, ruleset.Rules)
}

func TestGenerateAppliesUserExclusions(t *testing.T) {
	store := ruleGenStore(t, []models.Relationship{gpuMasterEdge()})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	prefs := &models.FieldPreference{
		ExcludeFields: map[string][]string{"brz_lnd_RBP_GPU": {"material_id"}},
	}
	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, prefs)
	require.NoError(t, err)
	assert.Empty(t, ruleset.Rules)
}

func TestGenerateFieldHintRules(t *testing.T) {
	store := ruleGenStore(t, nil)
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	prefs := &models.FieldPreference{
		FieldHints: map[string]map[string]string{
			"brz_lnd_RBP_GPU": {"material_id": "hana_material_master.material_id"},
		},
	}
	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, prefs)
	require.NoError(t, err)
	require.Len(t, ruleset.Rules, 1)

	rule := ruleset.Rules[0]
	assert.Equal(t, fieldHintConfidence, rule.Confidence)
	assert.Equal(t, models.ValidationValid, rule.ValidationStatus)
	assert.Equal(t, "hana_material_master", rule.TargetTable)
	assert.Equal(t, []string{"material_id"}, rule.TargetColumns)
}

func TestGenerateFieldHintBareColumnSearchesOtherTables(t *testing.T) {
	store := ruleGenStore(t, nil)
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	prefs := &models.FieldPreference{
		FieldHints: map[string]map[string]string{
			"brz_lnd_RBP_GPU": {"material_id": "material_id"},
		},
	}
	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, prefs)
	require.NoError(t, err)
	require.Len(t, ruleset.Rules, 1)
	// Bare hint resolves against the only other table carrying the column.
	assert.Equal(t, "hana_material_master", ruleset.Rules[0].TargetTable)
}

func TestGenerateDedupKeepsHigherConfidence(t *testing.T) {
	store := ruleGenStore(t, []models.Relationship{gpuMasterEdge()})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	// The field hint duplicates the pattern rule's key at higher confidence.
	prefs := &models.FieldPreference{
		FieldHints: map[string]map[string]string{
			"brz_lnd_RBP_GPU": {"material_id": "hana_material_master.id"},
		},
	}
	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.5, prefs)
	require.NoError(t, err)
	require.Len(t, ruleset.Rules, 1)

	rule := ruleset.Rules[0]
	assert.Equal(t, fieldHintConfidence, rule.Confidence)
	assert.Equal(t, models.ValidationValid, rule.ValidationStatus)
}

func TestGenerateLLMRules(t *testing.T) {
	store := ruleGenStore(t, nil)
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"rules": [{
			"rule_name": "GPU quantity to master",
			"source_table": "brz_lnd_RBP_GPU",
			"source_columns": ["quantity"],
			"target_table": "hana_material_master",
			"target_columns": ["id"],
			"match_type": "fuzzy",
			"confidence": 0.8,
			"reasoning": "quantity correlation"
		}]}`, nil
	}
	gen := NewRuleGenerator(store, client, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), true, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, ruleset.Rules, 1)

	rule := ruleset.Rules[0]
	assert.Equal(t, "GPU quantity to master", rule.RuleName)
	assert.Equal(t, models.MatchTypeFuzzy, rule.MatchType)
	assert.True(t, rule.LLMGenerated)
	assert.Equal(t, 1, client.GenerateResponseCalls)
}

func TestGenerateLLMDropsInvalidCandidates(t *testing.T) {
	store := ruleGenStore(t, nil)
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"rules": [
			{"source_table": "ghost", "source_columns": ["x"], "target_table": "hana_material_master", "target_columns": ["id"], "confidence": 0.9},
			{"source_table": "brz_lnd_RBP_GPU", "source_columns": ["quantity", "material_id"], "target_table": "hana_material_master", "target_columns": ["id"], "confidence": 0.9},
			{"source_table": "brz_lnd_RBP_GPU", "source_columns": ["quantity"], "target_table": "hana_material_master", "target_columns": ["id"], "match_type": "telepathic", "confidence": 0.9}
		]}`, nil
	}
	gen := NewRuleGenerator(store, client, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), true, 0.5, nil)
	require.NoError(t, err)
	assert.Empty(t, ruleset.Rules)
}

func TestGenerateLLMFailureIsNonFatal(t *testing.T) {
	store := ruleGenStore(t, []models.Relationship{gpuMasterEdge()})
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return "", errors.New("model unavailable")
	}
	gen := NewRuleGenerator(store, client, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), true, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, ruleset.Rules, 1)
}

func TestGenerateMinConfidenceFilter(t *testing.T) {
	edge := gpuMasterEdge()
	store := ruleGenStore(t, []models.Relationship{edge})
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	ruleset, err := gen.Generate(context.Background(), "test", ruleGenSchemas(), false, 0.95, nil)
	require.NoError(t, err)
	assert.Empty(t, ruleset.Rules)
}

func TestGenerateUnknownKG(t *testing.T) {
	store := kg.NewStore(nil, zap.NewNop())
	gen := NewRuleGenerator(store, nil, zap.NewNop())

	_, err := gen.Generate(context.Background(), "missing", ruleGenSchemas(), false, 0.5, nil)
	assert.Error(t, err)
}
