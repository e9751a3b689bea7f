package prompts

import (
	"fmt"
	"strings"

	"github.com/reconlab/recon-engine/pkg/models"
)

// RelationshipSystemMessage primes the model for NL relationship parsing.
const RelationshipSystemMessage = `You are a data integration expert. Your task is to extract table-to-table relationships from natural language statements about database schemas.`

// BuildRelationshipPrompt creates the prompt for parsing relationships out of
// a natural language statement. stopWords are tokens that must never be
// treated as table names.
func BuildRelationshipPrompt(statement string, schemas []*models.Schema, stopWords []string) string {
	var prompt strings.Builder

	prompt.WriteString("# Relationship Extraction\n\n")
	prompt.WriteString("Extract database relationships from the statement below. Only use tables that appear in the schema listing.\n\n")

	prompt.WriteString("## Statement\n\n")
	prompt.WriteString(fmt.Sprintf("%q\n\n", statement))

	prompt.WriteString("## Available Schemas\n\n")
	for _, schema := range schemas {
		prompt.WriteString(fmt.Sprintf("### Schema: %s\n", schema.Name))
		for _, table := range schema.Tables {
			prompt.WriteString(fmt.Sprintf("- %s (%s)\n", table.Name, strings.Join(table.ColumnNames(), ", ")))
		}
		prompt.WriteString("\n")
	}

	if len(schemas) == 1 {
		prompt.WriteString("Only one schema is in play: interpret every relationship as an intra-schema join between two of its tables.\n\n")
	} else {
		prompt.WriteString("Multiple schemas are in play: relationships may cross schema boundaries.\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Table names must match the schema listing exactly (case preserved)\n")
	prompt.WriteString("- Column names must exist on the named table\n")
	prompt.WriteString(fmt.Sprintf("- Never treat these common words as table names: %s\n", strings.Join(stopWords, ", ")))
	prompt.WriteString("- cardinality is one of: one-to-one, one-to-many, many-to-one, many-to-many\n")
	prompt.WriteString("- confidence is 0.0-1.0 based on how explicit the statement is\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with a `relationships` array:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "relationships": [
    {
      "source_table": "brz_lnd_RBP_GPU",
      "source_column": "Material",
      "target_table": "brz_lnd_OPS_EXCEL_GPU",
      "target_column": "PLANNING_SKU",
      "cardinality": "many-to-one",
      "confidence": 0.9,
      "reasoning": "The statement says Material maps to PLANNING_SKU."
    }
  ]
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}
