// Package sqlgen emits dialect-correct SQL from query intents and
// reconciliation rules. Generation is a pure function of its inputs; the
// executor owns retries and result handling.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/reconlab/recon-engine/pkg/apperrors"
)

// Dialect selects identifier quoting and row limiting syntax.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLServer  Dialect = "sqlserver"
	DialectOracle     Dialect = "oracle"
)

// ParseDialect normalizes common driver/type spellings to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgresql", "postgres", "pgx":
		return DialectPostgreSQL, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	case "oracle", "ora":
		return DialectOracle, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q: %w", s, apperrors.ErrInvalidRequest)
}

// Quote wraps one identifier in the dialect's quoting style. Identifiers are
// always quoted exactly once; embedded quote characters are doubled.
func (d Dialect) Quote(identifier string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
}

// QualifyTable quotes a table reference, optionally prefixed with its schema.
// The schema.table separator stays unquoted.
func (d Dialect) QualifyTable(schema, table string, withPrefix bool) string {
	if withPrefix && schema != "" {
		return d.Quote(schema) + "." + d.Quote(table)
	}
	return d.Quote(table)
}

// ApplyLimit caps the statement's row count: trailing LIMIT for mysql and
// postgresql, TOP after SELECT [DISTINCT] for sqlserver, a ROWNUM predicate
// for oracle. limit <= 0 leaves the statement unchanged.
func (d Dialect) ApplyLimit(sql string, limit int) string {
	if limit <= 0 {
		return sql
	}
	switch d {
	case DialectSQLServer:
		for _, prefix := range []string{"SELECT DISTINCT ", "SELECT "} {
			if strings.HasPrefix(sql, prefix) {
				return fmt.Sprintf("%sTOP %d %s", prefix, limit, sql[len(prefix):])
			}
		}
		return sql
	case DialectOracle:
		if strings.Contains(sql, " WHERE ") {
			return fmt.Sprintf("%s AND ROWNUM <= %d", sql, limit)
		}
		return fmt.Sprintf("%s WHERE ROWNUM <= %d", sql, limit)
	default:
		return fmt.Sprintf("%s LIMIT %d", sql, limit)
	}
}

// QuoteValue renders a string literal with single quotes doubled.
func QuoteValue(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
