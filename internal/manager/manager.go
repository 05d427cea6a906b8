// Package manager runs the automatic profile-switching loop.
//
// All loop state is owned by the goroutine executing Run. Parameter events,
// timer expirations, apply results and user commands arrive on channels and
// are handled one at a time, so evaluation never races with itself.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"autoprofile/internal/engine"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
)

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrStopped        = errors.New("manager is not running")
)

// ProfileLister returns the validated profile list in user order.
type ProfileLister interface {
	List(ctx context.Context) ([]profile.Profile, error)
}

// ParameterSource provides atomic snapshots and change notifications.
type ParameterSource interface {
	Snapshot() param.Snapshot
	Events() <-chan param.Changed
}

// Applier pushes a profile's settings to the system.
type Applier interface {
	Apply(ctx context.Context, p profile.Profile) error
	CurrentProfileID() string
}

// PauseStore persists the manual-override pause across restarts.
type PauseStore interface {
	Paused() (bool, error)
	SetPaused(paused bool) error
}

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultBoundaryCap = time.Hour
)

type Options struct {
	Enabled             bool
	ResumeOnStateChange bool
	Debounce            time.Duration
	// BoundaryCap bounds the schedule timer so day-length drift (DST)
	// is corrected on the next tick.
	BoundaryCap time.Duration
	Now         func() time.Time
	OnSwitch    func(Switch)
}

// Switch describes a completed apply.
type Switch struct {
	From   string
	To     string
	Manual bool
	At     time.Time
}

// Status is a point-in-time view of the loop.
type Status struct {
	Enabled        bool      `json:"enabled"`
	Paused         bool      `json:"paused"`
	ActiveProfile  string    `json:"active_profile,omitempty"`
	Applying       string    `json:"applying,omitempty"`
	LastEvaluation time.Time `json:"last_evaluation,omitempty"`
	LastDecision   string    `json:"last_decision,omitempty"`
	NextBoundary   time.Time `json:"next_boundary,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

type Manager struct {
	engine   *engine.Engine
	profiles ProfileLister
	params   ParameterSource
	applier  Applier
	pause    PauseStore
	opts     Options

	cmds chan command
	done chan struct{}

	mu     sync.RWMutex
	status Status
}

// New builds a manager. pause may be nil, in which case the pause flag is
// kept in memory only.
func New(eng *engine.Engine, profiles ProfileLister, params ParameterSource, applier Applier, pause PauseStore, opts Options) *Manager {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BoundaryCap <= 0 {
		opts.BoundaryCap = DefaultBoundaryCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		engine:   eng,
		profiles: profiles,
		params:   params,
		applier:  applier,
		pause:    pause,
		opts:     opts,
		cmds:     make(chan command),
		done:     make(chan struct{}),
		status:   Status{Enabled: opts.Enabled},
	}
}

// Status returns the latest published loop state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Resume clears a manual override and re-evaluates immediately.
func (m *Manager) Resume(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdResume})
}

// Pause suspends automatic switching until Resume.
func (m *Manager) Pause(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdPause})
}

// ManualActivate applies the profile as a user override and pauses
// automatic switching.
func (m *Manager) ManualActivate(ctx context.Context, id string) error {
	return m.send(ctx, command{kind: cmdManual, id: id})
}

// SetEnabled toggles automatic switching globally.
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) error {
	return m.send(ctx, command{kind: cmdSetEnabled, enabled: enabled})
}

// ProfilesChanged tells the loop the profile list was edited.
func (m *Manager) ProfilesChanged(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdProfilesChanged})
}

func (m *Manager) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.cmds <- cmd:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled. It must be called once.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	l := newLoop(m)
	if m.pause != nil {
		paused, err := m.pause.Paused()
		if err != nil {
			l.logger.Warn().Err(err).Msg("load pause state; assuming running")
		}
		l.paused = paused
	}
	l.guard("startup", func() {
		l.reschedule(ctx)
		if l.running() {
			l.evaluate(ctx)
		}
	})
	l.publish()

	events := m.params.Events()
	for {
		select {
		case <-ctx.Done():
			l.stopTimers()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.guard("parameter", func() { l.onParameter(ev) })
		case <-l.debounceC:
			l.debounce, l.debounceC = nil, nil
			l.guard("debounce", func() {
				if l.running() {
					l.evaluate(ctx)
				}
			})
		case <-l.boundaryC:
			l.boundary, l.boundaryC = nil, nil
			l.guard("boundary", func() {
				if l.running() {
					l.evaluate(ctx)
				}
			})
			l.guard("reschedule", func() { l.reschedule(ctx) })
		case res := <-l.applied:
			l.guard("apply", func() { l.onApplied(ctx, res) })
		case cmd := <-m.cmds:
			var err error
			l.guard("command", func() { err = l.handle(ctx, cmd) })
			l.publish()
			cmd.reply <- err
		}
		l.publish()
	}
}
