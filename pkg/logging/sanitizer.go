// Package logging scrubs guest data and credentials from values before they
// reach the log.
package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxBodyLogLength is the longest message preview written to the log.
	MaxBodyLogLength = 120
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+(\.[A-Za-z0-9-_]+)*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host format
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

	// "code: 4821", "password - sea-breeze", "pin 1234"
	labelledSecretPattern = regexp.MustCompile(`(?i)\b(password|passcode|code|pin|key)(\s*[:=\-]?\s*)[^\s,.;]+`)

	// Bare 4 to 8 digit runs look like door or lockbox codes.
	digitCodePattern = regexp.MustCompile(`\b\d{4,8}\b`)
)

// SanitizeConnectionString removes credentials from a connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// MaskEmail keeps the first character of the local part and the domain:
// jane@example.com becomes j***@example.com.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return RedactedText
	}
	first, _ := utf8.DecodeRuneInString(email)
	return string(first) + "***" + email[at:]
}

// SanitizeMessage masks email addresses and redacts anything that looks like
// an access code or credential, then truncates to maxLen runes. A
// non-positive maxLen uses MaxBodyLogLength.
func SanitizeMessage(body string, maxLen int) string {
	if body == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = MaxBodyLogLength
	}

	sanitized := emailPattern.ReplaceAllStringFunc(body, MaskEmail)
	sanitized = labelledSecretPattern.ReplaceAllString(sanitized, "${1}${2}"+RedactedText)
	sanitized = digitCodePattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = strings.Join(strings.Fields(sanitized), " ")

	return TruncateString(sanitized, maxLen)
}

// TruncateString truncates s to maxLen runes and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
