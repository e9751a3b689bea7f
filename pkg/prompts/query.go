package prompts

import (
	"fmt"
	"strings"
)

// QuerySystemMessage primes the model for NL query parsing.
const QuerySystemMessage = `You are a reconciliation query parser. Your task is to turn natural language data questions into a structured query intent over known tables.`

// TableVocabulary pairs a table label with its learned aliases for prompt
// construction.
type TableVocabulary struct {
	Label   string
	Aliases []string
}

// BuildQueryPrompt creates the prompt for parsing one NL definition into a
// query intent.
func BuildQueryPrompt(definition string, vocabulary []TableVocabulary, stopWords []string) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Intent Extraction\n\n")
	prompt.WriteString("Parse the definition below into a structured query intent.\n\n")

	prompt.WriteString("## Definition\n\n")
	prompt.WriteString(fmt.Sprintf("%q\n\n", definition))

	prompt.WriteString("## Known Tables\n\n")
	for _, entry := range vocabulary {
		if len(entry.Aliases) > 0 {
			prompt.WriteString(fmt.Sprintf("- %s (aliases: %s)\n", entry.Label, strings.Join(entry.Aliases, ", ")))
		} else {
			prompt.WriteString(fmt.Sprintf("- %s\n", entry.Label))
		}
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- query_type is one of: comparison_query, filter_query, aggregation_query, data_query\n")
	prompt.WriteString("- operation is one of: IN, NOT_IN, EQUALS, CONTAINS, COUNT, SUM, AVG, AGGREGATE, or null\n")
	prompt.WriteString("- \"not in\", \"missing\", \"unmatched\" mean operation NOT_IN; plain \"in\" means IN\n")
	prompt.WriteString("- source_table and target_table must be labels or aliases from Known Tables\n")
	prompt.WriteString(fmt.Sprintf("- Never treat these common words as table names: %s\n", strings.Join(stopWords, ", ")))
	prompt.WriteString("- Filters like \"active\" mean column Active_Inactive = 'Active' when such a column exists\n")
	prompt.WriteString("- \"include <column> from <table>\" adds an entry to additional_columns\n\n")

	prompt.WriteString("## Examples\n\n")
	prompt.WriteString("Definition: \"Show me all active products in RBP which are in OPS Excel\"\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "query_type": "comparison_query",
  "operation": "IN",
  "source_table": "RBP",
  "target_table": "OPS Excel",
  "filters": [{"column": "Active_Inactive", "value": "Active"}],
  "additional_columns": [],
  "confidence": 0.9
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Definition: \"Count records in RBP where Region = 'EMEA'\"\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "query_type": "aggregation_query",
  "operation": "COUNT",
  "source_table": "RBP",
  "target_table": null,
  "filters": [{"column": "Region", "value": "EMEA"}],
  "additional_columns": [],
  "confidence": 0.85
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond with one JSON object:\n")
	prompt.WriteString("- `query_type`, `operation`, `source_table`, `target_table` (null when absent)\n")
	prompt.WriteString("- `filters`: array of {column, value, table_hint?, comparator?}\n")
	prompt.WriteString("- `additional_columns`: array of {table, column_name}\n")
	prompt.WriteString("- `confidence`: 0.0-1.0\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}
