package param

import "maps"

// Snapshot is an immutable view of parameter values at one instant.
// A parameter missing from the snapshot is unknown.
type Snapshot struct {
	values map[string]string
}

// NewSnapshot copies values into a new snapshot.
func NewSnapshot(values map[string]string) Snapshot {
	return Snapshot{values: maps.Clone(values)}
}

func (s Snapshot) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s Snapshot) Len() int { return len(s.values) }

// Values returns a copy of the underlying map.
func (s Snapshot) Values() map[string]string {
	out := maps.Clone(s.values)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// with returns a new snapshot with name set to value; empty value clears it.
func (s Snapshot) with(name, value string) Snapshot {
	next := maps.Clone(s.values)
	if next == nil {
		next = make(map[string]string, 1)
	}
	if value == "" {
		delete(next, name)
	} else {
		next[name] = value
	}
	return Snapshot{values: next}
}
