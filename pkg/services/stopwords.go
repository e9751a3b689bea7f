// Package services holds the engine's domain services: NL relationship
// parsing, reconciliation rule generation, and NL query classification and
// parsing.
package services

import (
	"sort"
	"strings"
)

// commonWords are tokens that must never be treated as table name candidates
// during NL parsing.
var commonWords = map[string]struct{}{
	"show": {}, "me": {}, "all": {}, "the": {}, "which": {}, "are": {},
	"is": {}, "a": {}, "an": {}, "and": {}, "or": {}, "not": {},
	"active": {}, "inactive": {}, "status": {}, "where": {}, "that": {},
	"this": {}, "from": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"on": {}, "at": {}, "of": {}, "find": {}, "get": {}, "list": {},
	"display": {}, "retrieve": {}, "fetch": {}, "select": {}, "give": {},
	"compare": {}, "difference": {}, "missing": {}, "mismatch": {},
	"unmatched": {}, "count": {}, "sum": {}, "average": {}, "total": {},
	"in": {}, "products": {}, "product": {}, "data": {}, "records": {},
	"items": {}, "entries": {}, "table": {}, "tables": {}, "include": {},
	"between": {}, "but": {}, "have": {}, "has": {}, "their": {},
}

// IsCommonWord reports whether a token is excluded from table candidacy.
func IsCommonWord(token string) bool {
	_, ok := commonWords[strings.ToLower(token)]
	return ok
}

// StopWords returns the common-word set sorted, for prompt construction.
func StopWords() []string {
	words := make([]string, 0, len(commonWords))
	for w := range commonWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
