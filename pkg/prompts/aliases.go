// Package prompts builds the LLM prompts used across the engine: alias
// learning, NL relationship parsing, rule generation, and query parsing.
// Every prompt ends with a strict JSON output contract.
package prompts

import (
	"fmt"
	"strings"
)

// AliasSystemMessage primes the model for table alias learning.
const AliasSystemMessage = `You are a data catalog expert. Your task is to derive short, human-friendly business aliases for technical database table names.`

// BuildAliasPrompt creates the prompt for learning aliases of one table.
func BuildAliasPrompt(tableName, description string, columns []string) string {
	var prompt strings.Builder

	prompt.WriteString("# Table Alias Learning\n\n")
	prompt.WriteString("Derive business-friendly aliases for the following database table.\n\n")

	prompt.WriteString("## Table\n\n")
	prompt.WriteString(fmt.Sprintf("Name: %s\n", tableName))
	if description != "" {
		prompt.WriteString(fmt.Sprintf("Description: %s\n", description))
	}
	if len(columns) > 0 {
		sample := columns
		if len(sample) > 15 {
			sample = sample[:15]
		}
		prompt.WriteString(fmt.Sprintf("Representative columns: %s\n", strings.Join(sample, ", ")))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Guidelines\n\n")
	prompt.WriteString("- Strip technical layer prefixes (brz, lnd, stg, dim, fct) and keep the business terms\n")
	prompt.WriteString("- Prefer short names users would say in conversation (e.g. brz_lnd_RBP_GPU -> \"RBP\", \"RBP GPU\")\n")
	prompt.WriteString("- Do not invent terms that are not implied by the name, description, or columns\n")
	prompt.WriteString("- Do not repeat the table name itself\n")
	prompt.WriteString("- Return at most 4 aliases; an empty list is acceptable\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond with a JSON array of strings.\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("[\"RBP\", \"RBP GPU\"]\n")
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}
