package engine

import (
	"time"

	"autoprofile/internal/param"
	"autoprofile/internal/profile"
)

// Request is everything one evaluation depends on.
type Request struct {
	Snapshot param.Snapshot
	Now      time.Time
	ActiveID string // currently applied profile, empty when unknown
}

// Decision is the outcome of an evaluation.
// Profile is nil when nothing matched; the caller keeps the current profile.
type Decision struct {
	Profile    *profile.Profile
	Candidates int  // profiles that survived gating
	Changed    bool // Profile is set and differs from Request.ActiveID
}

// ID returns the chosen profile id or "".
func (d Decision) ID() string {
	if d.Profile == nil {
		return ""
	}
	return d.Profile.ID
}
