package models

// excludedFields are column name literals that must never participate in
// generated relationships, rules, joins, or projections. Membership is
// case-exact by contract.
var excludedFields = map[string]struct{}{
	"Product_Line":       {},
	"product_line":       {},
	"PRODUCT_LINE":       {},
	"Product Line":       {},
	"Business_Unit":      {},
	"business_unit":      {},
	"BUSINESS_UNIT":      {},
	"Business Unit":      {},
	"[Business Unit]":    {},
	"BUSINESS_UNIT_CODE": {},
	"[Product Type]":     {},
	"Product Type":       {},
	"product_type":       {},
	"PRODUCT_TYPE":       {},
	"business unit":      {},
}

// IsExcluded reports whether the field equals one of the excluded literals.
func IsExcluded(field string) bool {
	_, ok := excludedFields[field]
	return ok
}

// ExcludedFields returns the excluded literals (for prompt construction).
func ExcludedFields() []string {
	out := make([]string, 0, len(excludedFields))
	for f := range excludedFields {
		out = append(out, f)
	}
	return out
}
