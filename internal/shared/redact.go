package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// The dashboard handles exactly two secrets, the dashboard auth token and
// the hook token, but log payloads can echo arbitrary request text, so the
// matchers cover the usual key=value, header and query spellings. Each
// pattern's first group is the identifying prefix kept after redaction.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|hook[_-]?token|bearer)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`),
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	regexp.MustCompile(`(?i)(token=)([A-Za-z0-9_\-./+=]{16,})`),
	regexp.MustCompile(`(?i)(token|secret)\s*[:=]\s*"?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})"?`),
}

// Redact replaces secret-bearing fragments of input with [REDACTED],
// keeping the identifying prefix so log lines stay attributable
// ("Bearer [REDACTED]" rather than a bare placeholder).
func Redact(input string) string {
	if input == "" {
		return input
	}
	out := input
	for _, re := range secretPatterns {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			groups := re.FindStringSubmatch(match)
			if len(groups) >= 3 {
				return groups[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return out
}

var sensitiveKeyFragments = []string{"api_key", "apikey", "secret", "token", "password", "credential"}

// RedactEnvValue hides the value of any environment key that looks
// secret-bearing; other values pass through unchanged.
func RedactEnvValue(key, value string) string {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return redactedPlaceholder
		}
	}
	return value
}
