package param

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidValue     = errors.New("invalid parameter value")
)

// Kind is the value domain of a parameter.
type Kind string

const (
	KindEnum    Kind = "enum"
	KindNumeric Kind = "numeric"
)

// Built-in parameter names.
const (
	DisplayConnected = "display_connected"
	PowerSource      = "power_source"
	LidState         = "lid_state"
	BatteryLevel     = "battery_level"
	PlatformProfile  = "power_profile_daemon"
)

// Definition describes one observable signal.
type Definition struct {
	Name   string   `mapstructure:"name" json:"name"`
	Kind   Kind     `mapstructure:"kind" json:"kind"`
	Values []string `mapstructure:"values" json:"values,omitempty"` // enum only
	Min    float64  `mapstructure:"min" json:"min,omitempty"`       // numeric only
	Max    float64  `mapstructure:"max" json:"max,omitempty"`       // numeric only
}

// Contains reports whether value lies in the parameter's domain.
func (d Definition) Contains(value string) bool {
	switch d.Kind {
	case KindEnum:
		return slices.Contains(d.Values, value)
	case KindNumeric:
		f, err := cast.ToFloat64E(strings.TrimSpace(value))
		if err != nil {
			return false
		}
		return f >= d.Min && f <= d.Max
	}
	return false
}

// Registry is the closed set of parameters the engine understands.
// It is immutable after construction.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry validates and indexes the given definitions.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(d Definition) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return errors.New("parameter name is required")
	}
	if _, dup := r.defs[d.Name]; dup {
		return fmt.Errorf("duplicate parameter %q", d.Name)
	}
	switch d.Kind {
	case KindEnum:
		if len(d.Values) < 2 {
			return fmt.Errorf("parameter %q: enum needs at least two values", d.Name)
		}
		d.Values = slices.Clone(d.Values)
	case KindNumeric:
		if d.Min >= d.Max {
			return fmt.Errorf("parameter %q: min must be below max", d.Name)
		}
	default:
		return fmt.Errorf("parameter %q: unknown kind %q", d.Name, d.Kind)
	}
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Builtin returns the definitions every registry starts with.
func Builtin() []Definition {
	return []Definition{
		{Name: DisplayConnected, Kind: KindEnum, Values: []string{"connected", "not_connected"}},
		{Name: PowerSource, Kind: KindEnum, Values: []string{"ac", "battery"}},
		{Name: LidState, Kind: KindEnum, Values: []string{"open", "closed"}},
		{Name: BatteryLevel, Kind: KindNumeric, Min: 0, Max: 100},
		{Name: PlatformProfile, Kind: KindEnum, Values: []string{"power-saver", "balanced", "performance"}},
	}
}

// DefaultRegistry returns a registry with only the built-in parameters.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

// WithBuiltin builds a registry from the built-ins plus extra definitions.
func WithBuiltin(extra ...Definition) (*Registry, error) {
	return NewRegistry(append(Builtin(), extra...)...)
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns parameter names in registration order.
func (r *Registry) Names() []string { return slices.Clone(r.order) }

// Check returns an error if value is not acceptable for the named parameter.
func (r *Registry) Check(name, value string) error {
	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	if !d.Contains(value) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidValue, value, name)
	}
	return nil
}
