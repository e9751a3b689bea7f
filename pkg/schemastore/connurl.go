package schemastore

import (
	"regexp"
	"strings"
)

var (
	tnsServicePattern = regexp.MustCompile(`(?i)SERVICE_NAME\s*=\s*([^)\s]+)`)
	sidPattern        = regexp.MustCompile(`(?i)\bSID\s*=\s*([^)\s]+)`)
	mssqlDBPattern    = regexp.MustCompile(`(?i)database(?:Name)?=([^;&?\s]+)`)
	oracleThinPattern = regexp.MustCompile(`(?i)oracle:thin:@//?[^/:]+(?::\d+)?[/:]([^?;\s]+)`)
	trailingDBPattern = regexp.MustCompile(`/([^/?;]+)(?:[?;].*)?$`)
)

// ExtractDatabaseName pulls the database (or Oracle service) name out of a
// connection URL. Supported dialects: mysql, postgresql, sqlserver, and
// oracle including TNS descriptors. Fallback: the substring after the last
// "/" and before any "?".
func ExtractDatabaseName(connectionURL string) string {
	url := strings.TrimSpace(connectionURL)
	if url == "" {
		return ""
	}

	lower := strings.ToLower(url)

	// Oracle TNS descriptor: (DESCRIPTION=...(SERVICE_NAME=svc)...)
	if strings.Contains(lower, "service_name") {
		if m := tnsServicePattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	if strings.Contains(lower, "oracle") {
		if m := oracleThinPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
		if m := sidPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}

	// SQL Server: database=... or databaseName=... in query/properties.
	if strings.Contains(lower, "sqlserver") || strings.Contains(lower, "database") {
		if m := mssqlDBPattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}

	// mysql/postgresql and generic URLs: path segment after the last "/".
	if m := trailingDBPattern.FindStringSubmatch(url); m != nil {
		name := m[1]
		// Strip a user:pass@host prefix that survives when no path exists.
		if !strings.ContainsAny(name, "@:") {
			return name
		}
	}

	return ""
}
