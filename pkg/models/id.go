package models

import (
	"github.com/google/uuid"
)

// NewID returns PREFIX_<8 hex chars> derived from a v4 UUID. Used for rule,
// ruleset, execution, and KPI identifiers.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
