package models

import "strings"

// SnapshotRequest is the query string of GET /api/v1/snapshot.
type SnapshotRequest struct {
	// Property is the society / project / building name. Required.
	Property string `form:"property"`

	// City narrows the search. Required.
	City string `form:"city"`

	// Format overrides the configured output encoding.
	// Allowed: "png", "jpeg". Default: server configuration.
	Format string `form:"format" binding:"omitempty,oneof=png jpeg"`

	// Targets optionally restricts the run to a comma-separated list of
	// registry names. Default: every target.
	Targets string `form:"targets"`

	// MaxAge accepts a cached composite up to this many milliseconds old.
	// Default: 0 (always capture fresh).
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`

	// Prop is the legacy spelling of Property used by GET /scrape.
	Prop string `form:"prop"`
}

// Defaults folds legacy parameters into their current names.
func (r *SnapshotRequest) Defaults() {
	if r.Property == "" {
		r.Property = r.Prop
	}
}

// TargetNames splits the Targets filter, dropping empty entries.
func (r *SnapshotRequest) TargetNames() []string {
	if strings.TrimSpace(r.Targets) == "" {
		return nil
	}
	parts := strings.Split(r.Targets, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
