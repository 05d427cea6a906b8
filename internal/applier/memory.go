// Package applier pushes a selected profile to the system.
package applier

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"autoprofile/internal/profile"
)

// Memory records applies without touching the system. Delay simulates a
// slow apply.
type Memory struct {
	delay time.Duration

	mu      sync.Mutex
	current string
	history []string
}

func NewMemory(delay time.Duration) *Memory {
	return &Memory{delay: delay}
}

func (m *Memory) Apply(ctx context.Context, p profile.Profile) error {
	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	m.mu.Lock()
	m.current = p.ID
	m.history = append(m.history, p.ID)
	m.mu.Unlock()
	log.Info().Str("profile", p.ID).Str("name", p.Name).Msg("profile applied (dry run)")
	return nil
}

func (m *Memory) CurrentProfileID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History lists applied profile ids, oldest first.
func (m *Memory) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}
