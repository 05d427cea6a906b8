package profile

import (
	"maps"
	"slices"

	"autoprofile/internal/condition"
	"autoprofile/internal/schedule"
)

// Profile is a named bundle of target settings with optional activation
// rules and schedule. Config is opaque to the engine and only handed to
// the applier.
type Profile struct {
	ID       string                `json:"id" yaml:"id"`
	Name     string                `json:"name" yaml:"name"`
	Rules    []condition.Condition `json:"rules" yaml:"rules"`
	Schedule *schedule.Schedule    `json:"schedule" yaml:"schedule"`
	Config   map[string]any        `json:"config,omitempty" yaml:"config,omitempty"`
}

// Scheduled reports whether the profile carries an enabled schedule.
func (p Profile) Scheduled() bool {
	return p.Schedule != nil && p.Schedule.Enabled
}

// Specificity is the automatic-selection priority: one point per rule plus
// one for an enabled schedule. It is always derived, never stored.
func (p Profile) Specificity() int {
	n := len(p.Rules)
	if p.Scheduled() {
		n++
	}
	return n
}

// AutoActivates reports whether the profile can ever be chosen automatically.
func (p Profile) AutoActivates() bool {
	return len(p.Rules) > 0 || p.Scheduled()
}

// Find returns the profile with the given id.
func Find(profiles []Profile, id string) (Profile, bool) {
	for _, p := range profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Clone returns a copy that shares no slices with p. Config values are
// copied one level deep.
func (p Profile) Clone() Profile {
	p.Rules = slices.Clone(p.Rules)
	if p.Schedule != nil {
		s := *p.Schedule
		s.Days = slices.Clone(s.Days)
		p.Schedule = &s
	}
	p.Config = maps.Clone(p.Config)
	return p
}
