package param

import (
	"sync"

	"github.com/rs/zerolog/log"

	"autoprofile/internal/cache"
)

// Changed is published whenever a parameter value changes.
type Changed struct {
	Name  string
	Value string // empty when the value became unknown
}

// Source holds the latest observed parameter values and publishes changes.
// Observers push values with Set; readers take atomic snapshots.
type Source struct {
	reg    *Registry
	mu     sync.Mutex // serializes writers
	snap   cache.Snapshot[Snapshot]
	events chan Changed
}

func NewSource(reg *Registry, buffer int) *Source {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Source{reg: reg, events: make(chan Changed, buffer)}
	s.snap.Store(NewSnapshot(nil))
	return s
}

func (s *Source) Registry() *Registry { return s.reg }

// Snapshot returns the current values. It never blocks on writers.
func (s *Source) Snapshot() Snapshot {
	v, _ := s.snap.Load()
	return v
}

// Events delivers change notifications. When the buffer is full a change
// is dropped; consumers always re-read a fresh snapshot, and an earlier
// queued event already guarantees a re-evaluation.
func (s *Source) Events() <-chan Changed { return s.events }

// Set records a new value for a known parameter.
func (s *Source) Set(name, value string) error {
	if err := s.reg.Check(name, value); err != nil {
		return err
	}
	s.update(name, value)
	return nil
}

// Clear marks the parameter as unknown.
func (s *Source) Clear(name string) error {
	if _, ok := s.reg.Lookup(name); !ok {
		return ErrUnknownParameter
	}
	s.update(name, "")
	return nil
}

func (s *Source) update(name, value string) {
	s.mu.Lock()
	cur := s.Snapshot()
	if old, ok := cur.Get(name); (ok && old == value) || (!ok && value == "") {
		s.mu.Unlock()
		return
	}
	s.snap.Store(cur.with(name, value))
	s.mu.Unlock()

	select {
	case s.events <- Changed{Name: name, Value: value}:
	default:
		log.Debug().Str("parameter", name).Msg("event buffer full; change coalesced")
	}
}
