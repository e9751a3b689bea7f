package datasource

import "strings"

// unknownObjectMarkers are backend error fragments meaning a table or schema
// does not exist: mysql 1146, SQL Server "Invalid object name", postgres
// 42P01, Oracle ORA-00942.
var unknownObjectMarkers = []string{
	"doesn't exist",
	"does not exist",
	"invalid object name",
	"42p01",
	"ora-00942",
	"unknown table",
}

// isUnknownObjectError reports whether the backend rejected the query because
// a referenced table or schema is absent. These errors trigger the executor's
// schema-prefix fallback.
func isUnknownObjectError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range unknownObjectMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
