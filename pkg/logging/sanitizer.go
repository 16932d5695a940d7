package logging

import (
	"regexp"
)

const (
	// MaxMessageLength caps sanitized messages stored on job records.
	MaxMessageLength = 500
	// RedactedText replaces sensitive values.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`)

	// key=... query parameters (Gemini puts the API key in the URL)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{16,}`)

	// provider secret keys embedded in messages
	secretKeyPattern = regexp.MustCompile(`\b(sk-ant-|sk-|AIza)[A-Za-z0-9\-_]{16,}`)

	// user:pass@host in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// SanitizeConnectionString removes credentials from a connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeError renders err without credentials, API keys or tokens, and
// truncated to MaxMessageLength. Use it before logging or persisting an
// error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}

// SanitizeMessage applies SanitizeError rules to a plain string.
func SanitizeMessage(msg string) string {
	s := passwordPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	if len(s) > MaxMessageLength {
		s = s[:MaxMessageLength] + "..."
	}
	return s
}
