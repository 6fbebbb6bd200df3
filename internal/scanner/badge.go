package scanner

import (
	"encoding/json"
	"strings"
)

const badgeTypeParticipant = "PARTICIPANT"

// badgePayload is the structured form printed on current badges.
type badgePayload struct {
	Type     string `json:"type"`
	UniqueID string `json:"uniqueId"`
}

// ParseBadge normalizes a decoded QR text to the canonical participant id.
// Current badges carry JSON {"type":"PARTICIPANT","uniqueId":...}; older
// badges carry the bare id, so any text that does not parse as a participant
// payload is taken verbatim.
func ParseBadge(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	var payload badgePayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil &&
		payload.Type == badgeTypeParticipant && payload.UniqueID != "" {
		return strings.ToUpper(strings.TrimSpace(payload.UniqueID))
	}

	return strings.ToUpper(trimmed)
}
