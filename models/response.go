package models

// ErrorResponse is the JSON body returned whenever no image is produced.
type ErrorResponse struct {
	// Error is the human-readable failure message.
	Error string `json:"error"`

	// Code is the machine-readable error kind.
	Code ErrorKind `json:"code,omitempty"`

	// Targets reports each target's outcome when a snapshot ran but
	// produced no image.
	Targets []TargetStatus `json:"targets,omitempty"`
}

// TargetStatus is the per-target summary of a snapshot run.
type TargetStatus struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// TargetInfo describes one registry entry for GET /api/v1/targets.
type TargetInfo struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	DirectURL string `json:"direct_url,omitempty"`
}

// TargetsResponse is the response for GET /api/v1/targets.
type TargetsResponse struct {
	Targets []TargetInfo `json:"targets"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"session_stats"`
	Targets      int          `json:"targets"`
	Version      string       `json:"version"`
}

// SessionStats reports browser session usage.
type SessionStats struct {
	Connected      bool  `json:"connected"`
	Remote         bool  `json:"remote"`
	ActiveSessions int   `json:"active_sessions"`
	OpenedTotal    int64 `json:"opened_total"`
}

// StatusesOf summarises outcomes for responses.
func StatusesOf(outcomes []ScrapeOutcome) []TargetStatus {
	out := make([]TargetStatus, len(outcomes))
	for i, o := range outcomes {
		out[i] = TargetStatus{
			Name:       o.TargetName,
			Status:     o.Status(),
			Detail:     o.Detail,
			DurationMs: o.Duration.Milliseconds(),
		}
	}
	return out
}
