package profile

import (
	"fmt"
	"strings"

	"autoprofile/internal/condition"
	"autoprofile/internal/param"
	"autoprofile/internal/schedule"
)

// FieldError locates one validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Result is the outcome of structural validation.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

func (r *Result) add(field, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Error joins all messages; it is empty for a valid result.
func (r Result) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a single profile against the parameter registry.
func Validate(p Profile, reg *param.Registry) Result {
	res := Result{Valid: true}
	if strings.TrimSpace(p.ID) == "" {
		res.add("id", "is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		res.add("name", "is required")
	}
	validateRules(&res, p.Rules, reg)
	if p.Schedule != nil {
		for _, e := range schedule.Validate(*p.Schedule) {
			res.add("schedule."+e.Field, "%s", e.Message)
		}
	}
	return res
}

func validateRules(res *Result, rules []condition.Condition, reg *param.Registry) {
	type slot struct {
		parameter string
		op        condition.Operator
	}
	seen := map[slot]int{}
	structural := true
	for i, c := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		def, ok := reg.Lookup(c.Parameter)
		if !ok {
			res.add(field+".parameter", "unknown parameter %q", c.Parameter)
			structural = false
			continue
		}
		if !c.Operator.Valid() {
			res.add(field+".operator", "unknown operator %q", c.Operator)
			structural = false
			continue
		}
		if !c.Operator.Accepts(def.Kind) {
			res.add(field+".operator", "%s does not apply to %s parameter %s", c.Operator, def.Kind, c.Parameter)
			structural = false
			continue
		}
		if !def.Contains(c.Value) {
			res.add(field+".value", "%q is outside the domain of %s", c.Value, c.Parameter)
			structural = false
			continue
		}
		k := slot{c.Parameter, c.Operator}
		if prev, dup := seen[k]; dup {
			res.add(field, "duplicates the %s condition on %s at rules[%d]", c.Operator, c.Parameter, prev)
			structural = false
			continue
		}
		seen[k] = i
	}
	if structural && !condition.Consistent(rules, reg) {
		res.add("rules", "conditions contradict each other and can never match")
	}
}
