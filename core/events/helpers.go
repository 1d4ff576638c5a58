package events

import "strings"

func normalizeReason(reason string) string {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return ""
	}
	return strings.ToLower(trimmed)
}
