package postgis

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnsafeQuery indicates the safety validator rejected a statement. This is
// a security boundary: callers must treat it as terminal, never as a
// retryable quality problem.
var ErrUnsafeQuery = errors.New("postgis: unsafe query")

var mutationKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|create|alter|truncate|grant|revoke|copy|vacuum|reindex)\b`)

// ValidateQuery checks that a statement is a single read-only SELECT with no
// injection vectors. Returns false with a human-readable reason on rejection.
func (c *Client) ValidateQuery(sql string) (bool, string) {
	return ValidateReadOnly(sql)
}

// ValidateReadOnly is the pure validation behind ValidateQuery, split out so
// it can be exercised without a live pool.
func ValidateReadOnly(sql string) (bool, string) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return false, "empty statement"
	}

	trimmed = strings.TrimSuffix(trimmed, ";")

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return false, "only SELECT statements are allowed"
	}

	if strings.Contains(trimmed, ";") {
		return false, "multiple statements are not allowed"
	}

	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") {
		return false, "SQL comments are not allowed"
	}

	if m := mutationKeyword.FindString(stripStringLiterals(trimmed)); m != "" {
		return false, "mutation keyword detected: " + strings.ToUpper(m)
	}

	return true, ""
}

// stripStringLiterals blanks out single-quoted literals so keyword scanning
// does not trip on filter values like 'dropstones'.
func stripStringLiterals(sql string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			inString = !inString
			b.WriteByte(ch)
			continue
		}
		if inString {
			b.WriteByte(' ')
		} else {
			b.WriteByte(ch)
		}
	}
	return b.String()
}
