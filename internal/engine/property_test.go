package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"autoprofile/internal/condition"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
	"autoprofile/internal/schedule"
)

var enumParams = []struct {
	name   string
	values []string
}{
	{param.PowerSource, []string{"ac", "battery"}},
	{param.LidState, []string{"open", "closed"}},
	{param.DisplayConnected, []string{"connected", "not_connected"}},
}

// genSnapshot picks a value (or unknown) for each enum parameter.
func genSnapshot() gopter.Gen {
	return gen.SliceOfN(len(enumParams), gen.IntRange(-1, 1)).Map(func(picks []int) param.Snapshot {
		m := map[string]string{}
		for i, pick := range picks {
			if pick >= 0 {
				m[enumParams[i].name] = enumParams[i].values[pick]
			}
		}
		return param.NewSnapshot(m)
	})
}

// genProfile builds a profile with up to one condition per enum parameter
// and an optional whole-day or short schedule.
func genProfile() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(len(enumParams), gen.IntRange(-1, 3)),
		gen.IntRange(0, 2),
		gen.Identifier(),
	).Map(func(vals []interface{}) profile.Profile {
		picks := vals[0].([]int)
		p := profile.Profile{ID: vals[2].(string)}
		for i, pick := range picks {
			if pick < 0 {
				continue
			}
			op := condition.Is
			if pick >= 2 {
				op = condition.IsNot
			}
			p.Rules = append(p.Rules, condition.Condition{
				Parameter: enumParams[i].name,
				Operator:  op,
				Value:     enumParams[i].values[pick%2],
			})
		}
		switch vals[1].(int) {
		case 1:
			p.Schedule = &schedule.Schedule{Enabled: true, Days: []int{1, 2, 3, 4, 5, 6, 7}, Start: "00:00", End: "23:59"}
		case 2:
			p.Schedule = &schedule.Schedule{Enabled: true, Days: []int{1}, Start: "09:00", End: "10:00"}
		}
		return p
	})
}

func genInstant() gopter.Gen {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return gen.Int64Range(0, 7*24*60-1).Map(func(m int64) time.Time {
		return base.Add(time.Duration(m) * time.Minute)
	})
}

func matches(p profile.Profile, s param.Snapshot, now time.Time) bool {
	if !p.AutoActivates() {
		return false
	}
	if p.Scheduled() && !schedule.IsActive(*p.Schedule, now) {
		return false
	}
	return len(p.Rules) == 0 || condition.EvaluateRules(p.Rules, s)
}

func TestProperties_Evaluate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	eng := NewEngine(param.DefaultRegistry())

	properties.Property("never returns a less specific matching profile", prop.ForAll(
		func(ps []profile.Profile, s param.Snapshot, now time.Time) bool {
			d := eng.Evaluate(ps, Request{Snapshot: s, Now: now})
			for _, p := range ps {
				if !matches(p, s, now) {
					continue
				}
				if d.Profile == nil {
					return false
				}
				if p.Specificity() > d.Profile.Specificity() {
					return false
				}
			}
			return d.Profile == nil || matches(*d.Profile, s, now)
		},
		gen.SliceOf(genProfile()), genSnapshot(), genInstant(),
	))

	properties.Property("evaluation is idempotent", prop.ForAll(
		func(ps []profile.Profile, s param.Snapshot, now time.Time) bool {
			first := eng.Evaluate(ps, Request{Snapshot: s, Now: now})
			second := eng.Evaluate(ps, Request{Snapshot: s, Now: now, ActiveID: first.ID()})
			return first.ID() == second.ID() && !second.Changed
		},
		gen.SliceOf(genProfile()), genSnapshot(), genInstant(),
	))

	properties.Property("scheduled winners do not depend on list order", prop.ForAll(
		func(ps []profile.Profile, s param.Snapshot, now time.Time) bool {
			reversed := make([]profile.Profile, len(ps))
			for i, p := range ps {
				reversed[len(ps)-1-i] = p
			}
			a := eng.Evaluate(ps, Request{Snapshot: s, Now: now})
			b := eng.Evaluate(reversed, Request{Snapshot: s, Now: now})
			if a.Profile == nil || b.Profile == nil {
				return a.Profile == nil && b.Profile == nil
			}
			if a.Profile.Scheduled() && b.Profile.Scheduled() {
				return a.ID() == b.ID()
			}
			return a.Profile.Specificity() == b.Profile.Specificity()
		},
		gen.SliceOf(genProfile()), genSnapshot(), genInstant(),
	))

	properties.TestingRun(t)
}

func TestProperties_Conflict(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	eng := NewEngine(param.DefaultRegistry())

	properties.Property("conflict is symmetric between two profiles", prop.ForAll(
		func(a, b profile.Profile) bool {
			b.ID = a.ID + "-other"
			ab := eng.Conflict([]profile.Profile{a}, b, "") != nil
			ba := eng.Conflict([]profile.Profile{b}, a, "") != nil
			return ab == ba
		},
		genProfile(), genProfile(),
	))

	properties.Property("no conflict means a deterministic winner", prop.ForAll(
		func(a, b profile.Profile, s param.Snapshot, now time.Time) bool {
			b.ID = a.ID + "-other"
			if eng.Conflict([]profile.Profile{a}, b, "") != nil {
				return true
			}
			ab := eng.Evaluate([]profile.Profile{a, b}, Request{Snapshot: s, Now: now})
			ba := eng.Evaluate([]profile.Profile{b, a}, Request{Snapshot: s, Now: now})
			return ab.ID() == ba.ID()
		},
		genProfile(), genProfile(), genSnapshot(), genInstant(),
	))

	properties.TestingRun(t)
}

func ExampleEngine_Evaluate() {
	eng := NewEngine(nil)
	ps := []profile.Profile{
		{ID: "battery", Rules: []condition.Condition{{Parameter: param.PowerSource, Operator: condition.Is, Value: "battery"}}},
	}
	d := eng.Evaluate(ps, Request{
		Snapshot: param.NewSnapshot(map[string]string{param.PowerSource: "battery"}),
		Now:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})
	fmt.Println(d.ID(), d.Changed)
	// Output: battery true
}
