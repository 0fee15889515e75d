package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitiveFields are field names whose values never reach a log line.
var sensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"jwt_secret":    true,
	"token":         true,
	"authorization": true,
	"bearer":        true,
	"dsn":           true,
	"postgres_dsn":  true,
}

var sensitivePatterns = []*regexp.Regexp{
	// key=value pairs in libpq connection strings and query strings
	regexp.MustCompile(`(?i)\b(password|secret|token)=("[^"]*"|'[^']*'|[^\s&]+)`),
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-_.]+`),
}

// IsSensitiveField reports whether values under key must be masked.
func IsSensitiveField(key string) bool {
	return sensitiveFields[strings.ToLower(key)]
}

// MaskCredential keeps the first and last two characters of short-lived
// identifiers and hides everything else.
func MaskCredential(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// Redact masks credentials inside s: the password of a URL-style DSN and
// password=, secret=, token= and bearer values anywhere in the text.
func Redact(s string) string {
	if s == "" {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			s = u.String()
		}
	}
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			if i := strings.Index(match, "="); i >= 0 {
				return match[:i+1] + "xxxxx"
			}
			sub := p.FindStringSubmatch(match)
			return sub[1] + "xxxxx"
		})
	}
	return s
}

// RedactFields returns a copy of fields with sensitive values masked, for
// audit details and structured log payloads.
func RedactFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			if IsSensitiveField(k) {
				out[k] = MaskCredential(val)
			} else {
				out[k] = Redact(val)
			}
		default:
			if IsSensitiveField(k) {
				out[k] = "***"
			} else {
				out[k] = v
			}
		}
	}
	return out
}
