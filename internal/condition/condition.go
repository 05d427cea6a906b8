// Package condition evaluates single parameter tests and conjunctive rule
// lists against a parameter snapshot.
package condition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"autoprofile/internal/param"
)

// Operator is the comparison a condition applies.
type Operator string

const (
	Is    Operator = "is"
	IsNot Operator = "is_not"
	Below Operator = "below"
	Above Operator = "above"
)

func (o Operator) Valid() bool {
	switch o {
	case Is, IsNot, Below, Above:
		return true
	}
	return false
}

// Numeric reports whether the operator compares numbers.
func (o Operator) Numeric() bool { return o == Below || o == Above }

// Accepts reports whether the operator applies to parameters of kind k.
func (o Operator) Accepts(k param.Kind) bool {
	if k == param.KindNumeric {
		return o.Numeric()
	}
	return o == Is || o == IsNot
}

// Condition is a single parameter-operator-value test.
type Condition struct {
	Parameter string   `json:"parameter" yaml:"parameter"`
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     string   `json:"value" yaml:"value"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Parameter, c.Operator, c.Value)
}

// Evaluate tests c against the snapshot. Unknown or malformed values
// never satisfy a condition.
func Evaluate(c Condition, s param.Snapshot) bool {
	v, ok := s.Get(c.Parameter)
	if !ok {
		return false
	}
	switch c.Operator {
	case Is:
		return v == c.Value
	case IsNot:
		return v != c.Value
	case Below, Above:
		got, err := toNumber(v)
		if err != nil {
			return false
		}
		threshold, err := toNumber(c.Value)
		if err != nil {
			return false
		}
		if c.Operator == Below {
			return got < threshold
		}
		return got > threshold
	}
	return false
}

// EvaluateRules is the conjunction of all conditions. An empty list is false.
func EvaluateRules(rules []Condition, s param.Snapshot) bool {
	if len(rules) == 0 {
		return false
	}
	for _, c := range rules {
		if !Evaluate(c, s) {
			return false
		}
	}
	return true
}

// SameSet reports whether a and b contain the same conditions, ignoring order.
func SameSet(a, b []Condition) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(sortedKeys(a), sortedKeys(b))
}

func sortedKeys(rules []Condition) []string {
	keys := make([]string, len(rules))
	for i, c := range rules {
		keys[i] = c.Parameter + "\x00" + string(c.Operator) + "\x00" + c.Value
	}
	slices.Sort(keys)
	return keys
}

func toNumber(s string) (float64, error) {
	return cast.ToFloat64E(strings.TrimSpace(s))
}
