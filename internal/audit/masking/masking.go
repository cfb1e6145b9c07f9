// Package masking redacts personal data before it is written to the audit log.
package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]bool{
	"email":     true,
	"old_email": true,
	"new_email": true,
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return maskToken
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskJSON returns a copy of input with sensitive string values masked.
// Nested maps are walked; blank keys are dropped.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}
	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if sensitiveKeys[strings.ToLower(key)] {
			return MaskEmail(cast)
		}
		return cast
	case map[string]any:
		return MaskJSON(cast)
	default:
		return value
	}
}
