package security

import (
	"regexp"
	"strings"
)

// secretPatterns match credential assignments in free text such as error messages.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:api[_-]?key|api[_-]?secret|access[_-]?token|request[_-]?token|totp[_-]?secret|token)\s*[=:]\s*)([^\s&"',]+)`),
	regexp.MustCompile(`(?i)(authorization:\s*token\s+)([^\s"']+)`),
}

// MaskSensitive masks credential values found in a string.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			return parts[1] + MaskCredential(parts[2])
		})
	}
	return result
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
