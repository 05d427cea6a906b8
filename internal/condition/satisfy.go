package condition

import "autoprofile/internal/param"

// Satisfiable reports whether some snapshot could satisfy both rule lists
// at once. Only parameters constrained by both lists are compared; any
// parameter constrained by one side alone can always be chosen freely.
// Unknown parameters and unparsable thresholds are treated as compatible,
// so the answer errs toward "could both match".
func Satisfiable(a, b []Condition, reg *param.Registry) bool {
	left := groupByParameter(a)
	right := groupByParameter(b)
	for name, lc := range left {
		rc, shared := right[name]
		if !shared {
			continue
		}
		var def *param.Definition
		if reg != nil {
			if d, ok := reg.Lookup(name); ok {
				def = &d
			}
		}
		if !compatible(append(append([]Condition(nil), lc...), rc...), def) {
			return false
		}
	}
	return true
}

// Consistent reports whether a single rule list can be satisfied at all.
func Consistent(rules []Condition, reg *param.Registry) bool {
	for name, cs := range groupByParameter(rules) {
		var def *param.Definition
		if reg != nil {
			if d, ok := reg.Lookup(name); ok {
				def = &d
			}
		}
		if !compatible(cs, def) {
			return false
		}
	}
	return true
}

func groupByParameter(rules []Condition) map[string][]Condition {
	out := make(map[string][]Condition, len(rules))
	for _, c := range rules {
		out[c.Parameter] = append(out[c.Parameter], c)
	}
	return out
}

// compatible checks every pair of constraints on one parameter, plus the
// joint effect of all is_not constraints against the parameter's domain.
func compatible(cs []Condition, def *param.Definition) bool {
	for i := 0; i < len(cs); i++ {
		for j := i + 1; j < len(cs); j++ {
			if !pairCompatible(cs[i], cs[j]) {
				return false
			}
		}
	}
	if def == nil || def.Kind != param.KindEnum {
		return true
	}
	forbidden := map[string]bool{}
	for _, c := range cs {
		if c.Operator == IsNot {
			forbidden[c.Value] = true
		}
	}
	if len(forbidden) == 0 {
		return true
	}
	for _, v := range def.Values {
		if !forbidden[v] {
			return true
		}
	}
	return false
}

func pairCompatible(x, y Condition) bool {
	if x.Operator > y.Operator {
		x, y = y, x
	}
	switch {
	case x.Operator == Is && y.Operator == Is:
		return x.Value == y.Value
	case x.Operator == Is && y.Operator == IsNot:
		return x.Value != y.Value
	case x.Operator == Above && y.Operator == Below:
		lo, err := toNumber(x.Value)
		if err != nil {
			return true
		}
		hi, err := toNumber(y.Value)
		if err != nil {
			return true
		}
		return hi > lo
	}
	return true
}
