package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reconlab/recon-engine/pkg/models"
)

// RuleSystemMessage primes the model for reconciliation rule generation.
const RuleSystemMessage = `You are a data reconciliation expert. Your task is to propose rules that match records between source and target tables so data quality can be measured.`

// BuildRulePrompt creates the prompt for LLM rule generation over the given
// schemas and cross-schema KG edges. prefs may be nil.
func BuildRulePrompt(schemas []*models.Schema, edges []models.Relationship, prefs *models.FieldPreference) string {
	var prompt strings.Builder

	prompt.WriteString("# Reconciliation Rule Generation\n\n")
	prompt.WriteString("Propose reconciliation rules that match records across the tables below.\n\n")

	prompt.WriteString("## Schemas\n\n")
	for _, schema := range schemas {
		prompt.WriteString(fmt.Sprintf("### Schema: %s\n", schema.Name))
		for _, table := range schema.Tables {
			prompt.WriteString(fmt.Sprintf("#### %s\n", table.Name))
			if table.Description != "" {
				prompt.WriteString(table.Description + "\n")
			}
			for _, col := range table.Columns {
				flags := ""
				if col.PrimaryKey {
					flags = " [PK]"
				}
				prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", col.Name, col.DataType, flags))
			}
			prompt.WriteString("\n")
		}
	}

	if len(edges) > 0 {
		prompt.WriteString("## Known Relationships\n\n")
		prompt.WriteString("These column pairings were already discovered; prefer them as rule seeds:\n\n")
		for _, edge := range edges {
			prompt.WriteString(fmt.Sprintf("- %s.%s -> %s.%s (%s, confidence %.2f)\n",
				strings.TrimPrefix(edge.SourceID, "table_"), edge.SourceColumn,
				strings.TrimPrefix(edge.TargetID, "table_"), edge.TargetColumn,
				edge.RelationshipType, edge.Confidence))
		}
		prompt.WriteString("\n")
	}

	writeFieldPreferences(&prompt, prefs)

	if len(schemas) == 1 {
		prompt.WriteString("Only one schema is in play: generate rules between tables of that schema, using its name for both source_schema and target_schema.\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- match_type is one of: exact, fuzzy, pattern, range\n")
	prompt.WriteString("- Only reference columns that exist in the schema listing\n")
	prompt.WriteString("- confidence is 0.0-1.0\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with a `rules` array:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "rules": [
    {
      "rule_name": "Material to Planning SKU",
      "source_schema": "rbp",
      "source_table": "brz_lnd_RBP_GPU",
      "source_columns": ["Material"],
      "target_schema": "ops",
      "target_table": "brz_lnd_OPS_EXCEL_GPU",
      "target_columns": ["PLANNING_SKU"],
      "match_type": "exact",
      "confidence": 0.9,
      "reasoning": "Both columns carry the product SKU."
    }
  ]
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

func writeFieldPreferences(prompt *strings.Builder, prefs *models.FieldPreference) {
	if prefs == nil {
		return
	}
	wrote := false
	header := func() {
		if !wrote {
			prompt.WriteString("## Field Preferences\n\n")
			wrote = true
		}
	}
	for _, table := range sortedKeys(prefs.PriorityFields) {
		header()
		prompt.WriteString(fmt.Sprintf("- Consider these %s columns first: %s\n", table, strings.Join(prefs.PriorityFields[table], ", ")))
	}
	for _, table := range sortedKeys(prefs.ExcludeFields) {
		header()
		prompt.WriteString(fmt.Sprintf("- Never use these %s columns: %s\n", table, strings.Join(prefs.ExcludeFields[table], ", ")))
	}
	for _, table := range sortedKeys(prefs.FieldHints) {
		hints := prefs.FieldHints[table]
		for _, src := range sortedKeys(hints) {
			header()
			prompt.WriteString(fmt.Sprintf("- Known mapping: %s.%s -> %s\n", table, src, hints[src]))
		}
	}
	if wrote {
		prompt.WriteString("\n")
	}
}

// sortedKeys keeps prompt text stable across runs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
