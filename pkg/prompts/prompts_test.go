package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconlab/recon-engine/pkg/models"
)

func promptSchemas() []*models.Schema {
	return []*models.Schema{
		{
			Name: "rbp",
			Tables: []models.Table{
				{
					Name: "brz_lnd_RBP_GPU",
					Columns: []models.Column{
						{Name: "Material", DataType: "varchar", PrimaryKey: true},
						{Name: "Region", DataType: "varchar"},
					},
				},
			},
		},
		{
			Name: "ops",
			Tables: []models.Table{
				{
					Name:        "brz_lnd_OPS_EXCEL_GPU",
					Description: "Operational plan extract.",
					Columns: []models.Column{
						{Name: "PLANNING_SKU", DataType: "varchar"},
					},
				},
			},
		},
	}
}

func TestBuildAliasPromptListsTableContext(t *testing.T) {
	prompt := BuildAliasPrompt("brz_lnd_RBP_GPU", "GPU planning extract", []string{"Material", "Region"})

	assert.Contains(t, prompt, "Name: brz_lnd_RBP_GPU")
	assert.Contains(t, prompt, "Description: GPU planning extract")
	assert.Contains(t, prompt, "Representative columns: Material, Region")
	assert.Contains(t, prompt, "JSON array of strings")
	assert.Contains(t, prompt, "Return ONLY the JSON")
}

func TestBuildAliasPromptCapsColumnSample(t *testing.T) {
	columns := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		columns = append(columns, "col_"+string(rune('a'+i)))
	}
	prompt := BuildAliasPrompt("orders", "", columns)

	assert.Contains(t, prompt, "col_a")
	assert.Contains(t, prompt, "col_o")
	assert.NotContains(t, prompt, "col_p")
	assert.NotContains(t, prompt, "Description:")
}

func TestBuildRelationshipPromptListsSchemasAndStopWords(t *testing.T) {
	prompt := BuildRelationshipPrompt(
		"Material in RBP maps to PLANNING_SKU in OPS",
		promptSchemas(),
		[]string{"data", "records", "table"},
	)

	assert.Contains(t, prompt, `"Material in RBP maps to PLANNING_SKU in OPS"`)
	assert.Contains(t, prompt, "### Schema: rbp")
	assert.Contains(t, prompt, "brz_lnd_RBP_GPU (Material, Region)")
	assert.Contains(t, prompt, "### Schema: ops")
	assert.Contains(t, prompt, "Never treat these common words as table names: data, records, table")
	assert.Contains(t, prompt, "Multiple schemas are in play")
	assert.Contains(t, prompt, `"relationships"`)
}

func TestBuildRelationshipPromptSingleSchemaHint(t *testing.T) {
	prompt := BuildRelationshipPrompt("orders link to customers", promptSchemas()[:1], nil)

	assert.Contains(t, prompt, "Only one schema is in play")
	assert.NotContains(t, prompt, "Multiple schemas are in play")
}

func TestBuildRulePromptListsColumnsAndEdges(t *testing.T) {
	edges := []models.Relationship{
		{
			SourceID:         "table_brz_lnd_RBP_GPU",
			SourceColumn:     "Material",
			TargetID:         "table_brz_lnd_OPS_EXCEL_GPU",
			TargetColumn:     "PLANNING_SKU",
			RelationshipType: models.RelTypeCrossSchemaReference,
			Confidence:       0.85,
		},
	}

	prompt := BuildRulePrompt(promptSchemas(), edges, nil)

	assert.Contains(t, prompt, "#### brz_lnd_RBP_GPU")
	assert.Contains(t, prompt, "- Material (varchar) [PK]")
	assert.Contains(t, prompt, "- Region (varchar)")
	assert.Contains(t, prompt, "Operational plan extract.")
	// Edge listing strips node id prefixes down to table names.
	assert.Contains(t, prompt, "brz_lnd_RBP_GPU.Material -> brz_lnd_OPS_EXCEL_GPU.PLANNING_SKU")
	assert.Contains(t, prompt, "confidence 0.85")
	assert.NotContains(t, prompt, "table_brz")
	assert.Contains(t, prompt, `"rules"`)
	assert.NotContains(t, prompt, "Field Preferences")
}

func TestBuildRulePromptRendersFieldPreferences(t *testing.T) {
	prefs := &models.FieldPreference{
		PriorityFields: map[string][]string{"brz_lnd_RBP_GPU": {"Material", "Region"}},
		ExcludeFields:  map[string][]string{"brz_lnd_OPS_EXCEL_GPU": {"LOAD_TS"}},
		FieldHints: map[string]map[string]string{
			"brz_lnd_RBP_GPU": {"Material": "PLANNING_SKU"},
		},
	}

	prompt := BuildRulePrompt(promptSchemas(), nil, prefs)

	assert.Contains(t, prompt, "## Field Preferences")
	assert.Contains(t, prompt, "Consider these brz_lnd_RBP_GPU columns first: Material, Region")
	assert.Contains(t, prompt, "Never use these brz_lnd_OPS_EXCEL_GPU columns: LOAD_TS")
	assert.Contains(t, prompt, "Known mapping: brz_lnd_RBP_GPU.Material -> PLANNING_SKU")
}

func TestBuildRulePromptIsStableAcrossRuns(t *testing.T) {
	prefs := &models.FieldPreference{
		PriorityFields: map[string][]string{
			"zeta":  {"z1"},
			"alpha": {"a1"},
			"mid":   {"m1"},
		},
	}

	first := BuildRulePrompt(promptSchemas(), nil, prefs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildRulePrompt(promptSchemas(), nil, prefs))
	}
	// Map iteration must not leak into prompt ordering.
	assert.Less(t, strings.Index(first, "alpha"), strings.Index(first, "mid"))
	assert.Less(t, strings.Index(first, "mid"), strings.Index(first, "zeta"))
}

func TestBuildQueryPromptListsVocabularyAndRules(t *testing.T) {
	vocabulary := []TableVocabulary{
		{Label: "brz_lnd_RBP_GPU", Aliases: []string{"RBP", "RBP GPU"}},
		{Label: "hana_material_master"},
	}

	prompt := BuildQueryPrompt("Show me all active products in RBP", vocabulary, []string{"show", "active"})

	assert.Contains(t, prompt, `"Show me all active products in RBP"`)
	assert.Contains(t, prompt, "- brz_lnd_RBP_GPU (aliases: RBP, RBP GPU)")
	assert.Contains(t, prompt, "- hana_material_master\n")
	assert.Contains(t, prompt, "Never treat these common words as table names: show, active")
	assert.Contains(t, prompt, "comparison_query, filter_query, aggregation_query, data_query")
	assert.Contains(t, prompt, `"query_type"`)
	assert.Contains(t, prompt, "Return ONLY the JSON")
}
