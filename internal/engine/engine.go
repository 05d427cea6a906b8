package engine

import (
	"fmt"
	"time"

	"autoprofile/internal/condition"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
	"autoprofile/internal/schedule"
)

// Engine selects profiles and detects ambiguous definitions. It holds no
// mutable state; every method is a pure function of its arguments.
type Engine struct {
	reg *param.Registry
}

func NewEngine(reg *param.Registry) *Engine {
	if reg == nil {
		reg = param.DefaultRegistry()
	}
	return &Engine{reg: reg}
}

func (e *Engine) Registry() *param.Registry { return e.reg }

// candidate is a profile that passed gating, with its position in the list.
type candidate struct {
	p         *profile.Profile
	scheduled bool
}

// Evaluate picks the single best profile for the request.
//
// Highest specificity wins. At equal specificity a profile with an active
// schedule beats one without; between two scheduled profiles the smaller id
// wins; otherwise the profile listed first wins, so list order is a
// user-visible tie-break.
func (e *Engine) Evaluate(profiles []profile.Profile, req Request) Decision {
	var best *candidate
	survivors := 0
	for i := range profiles {
		p := &profiles[i]
		if !p.AutoActivates() {
			continue
		}
		if p.Scheduled() && !schedule.IsActive(*p.Schedule, req.Now) {
			continue
		}
		if len(p.Rules) > 0 && !condition.EvaluateRules(p.Rules, req.Snapshot) {
			continue
		}
		survivors++
		c := &candidate{p: p, scheduled: p.Scheduled()}
		if best == nil || beats(c, best) {
			best = c
		}
	}
	if best == nil {
		return Decision{}
	}
	chosen := *best.p
	return Decision{
		Profile:    &chosen,
		Candidates: survivors,
		Changed:    chosen.ID != req.ActiveID,
	}
}

// beats reports whether c should replace the current best, which was
// encountered earlier in list order.
func beats(c, best *candidate) bool {
	cs, bs := c.p.Specificity(), best.p.Specificity()
	if cs != bs {
		return cs > bs
	}
	if c.scheduled != best.scheduled {
		return c.scheduled
	}
	if c.scheduled {
		return c.p.ID < best.p.ID
	}
	return false
}

// Conflict returns an existing profile that could be eligible at the same
// time as candidate with no deterministic winner, or nil. excludeID skips the
// profile being edited.
func (e *Engine) Conflict(profiles []profile.Profile, cand profile.Profile, excludeID string) *profile.Profile {
	if !cand.AutoActivates() {
		return nil
	}
	for i := range profiles {
		other := &profiles[i]
		if excludeID != "" && other.ID == excludeID {
			continue
		}
		if !other.AutoActivates() {
			continue
		}
		if e.conflicts(cand, *other) {
			found := *other
			return &found
		}
	}
	return nil
}

func (e *Engine) conflicts(a, b profile.Profile) bool {
	if condition.SameSet(a.Rules, b.Rules) {
		return scheduleConflict(a, b)
	}
	if a.Specificity() != b.Specificity() {
		return false
	}
	if !condition.Satisfiable(a.Rules, b.Rules, e.reg) {
		return false
	}
	return scheduleConflict(a, b)
}

// scheduleConflict decides ambiguity for two rule sets that could both hold.
// Exactly one schedule always resolves in favour of the scheduled profile.
func scheduleConflict(a, b profile.Profile) bool {
	switch {
	case a.Scheduled() && b.Scheduled():
		return schedule.Overlap(*a.Schedule, *b.Schedule)
	case a.Scheduled() != b.Scheduled():
		return false
	default:
		return true
	}
}

// CheckSet validates a whole profile list: unique ids, structural validity of
// every profile, and no ambiguous pairs. It returns the first problem found.
func (e *Engine) CheckSet(profiles []profile.Profile) error {
	seen := make(map[string]int, len(profiles))
	for i, p := range profiles {
		if prev, dup := seen[p.ID]; dup {
			return fmt.Errorf("profiles[%d]: id %q already used by profiles[%d]", i, p.ID, prev)
		}
		seen[p.ID] = i
		if res := profile.Validate(p, e.reg); !res.Valid {
			return fmt.Errorf("profiles[%d] (%s): %s", i, p.ID, res.Error())
		}
		if other := e.Conflict(profiles[:i], p, ""); other != nil {
			return fmt.Errorf("profiles[%d] (%s): conflicts with %q", i, p.ID, other.ID)
		}
	}
	return nil
}

// NextBoundary returns the delay until any enabled schedule in the list opens
// or closes, capped at limit. With no boundary at all it returns limit.
func NextBoundary(profiles []profile.Profile, now time.Time, limit time.Duration) time.Duration {
	next := limit
	for _, p := range profiles {
		if !p.Scheduled() {
			continue
		}
		if d, ok := schedule.UntilNextBoundary(*p.Schedule, now); ok && d < next {
			next = d
		}
	}
	return next
}
