package probe

import (
	"encoding/json"
	"strings"
)

// Normalize maps a backend-specific status string ("ok", "green", "degraded",
// "unhealthy", ...) onto State. The second result is false for unknown strings.
func Normalize(raw string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ok", "healthy", "green", "up", "pass", "passing", "operational", "ready", "available":
		return StateHealthy, true
	case "degraded", "yellow", "warn", "warning", "partial", "grey", "gray":
		return StateDegraded, true
	case "error", "unhealthy", "red", "down", "fail", "failing", "failed", "unreachable", "unavailable":
		return StateUnreachable, true
	default:
		return "", false
	}
}

// healthBody is the subset of health payloads that can carry a degraded marker.
type healthBody struct {
	Status   string                     `json:"status"`
	Services map[string]json.RawMessage `json:"services"`
}

// hasDegradedMarker reports whether a successful health response body says the
// service is only partially working. Non-JSON bodies carry no marker.
func hasDegradedMarker(body []byte) bool {
	var hb healthBody
	if err := json.Unmarshal(body, &hb); err != nil {
		return false
	}

	if state, ok := Normalize(hb.Status); ok && state != StateHealthy {
		return true
	}

	for _, raw := range hb.Services {
		if state, ok := Normalize(memberStatus(raw)); ok && state != StateHealthy {
			return true
		}
	}
	return false
}

// memberStatus extracts a status from either "healthy" or {"status":"healthy"}.
func memberStatus(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Status
	}
	return ""
}
