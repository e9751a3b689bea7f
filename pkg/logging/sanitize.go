package logging

import (
	"regexp"
)

// RedactedText replaces credential material in logged values.
const RedactedText = "[REDACTED]"

var (
	// password=x, pwd=x, pass=x in DSNs and TNS descriptors
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)\s*=\s*[^;&)\s]+`)

	// api_key=... style LLM credentials
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey)=[A-Za-z0-9-_]{8,}`)

	// user:pass@host in connection URLs
	credentialsPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
)

// RedactURL scrubs credentials from a connection URL before logging. Handles
// user:pass@host URLs, key=value DSNs, and Oracle TNS descriptors.
func RedactURL(connectionURL string) string {
	if connectionURL == "" {
		return ""
	}
	out := passwordPattern.ReplaceAllString(connectionURL, "${1}="+RedactedText)
	return credentialsPattern.ReplaceAllString(out, "://"+RedactedText+"@")
}

// RedactError scrubs credential material from an error before logging.
// Driver errors can echo the DSN back verbatim.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	out := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	out = apiKeyPattern.ReplaceAllString(out, "${1}="+RedactedText)
	return credentialsPattern.ReplaceAllString(out, "://"+RedactedText+"@")
}
