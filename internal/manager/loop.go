package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"autoprofile/internal/engine"
	"autoprofile/internal/observability"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
)

type cmdKind int

const (
	cmdResume cmdKind = iota
	cmdPause
	cmdManual
	cmdSetEnabled
	cmdProfilesChanged
)

type command struct {
	kind    cmdKind
	id      string
	enabled bool
	reply   chan error
}

type applyResult struct {
	p      profile.Profile
	from   string
	manual bool
	err    error
}

// loop is the state owned by the Run goroutine.
type loop struct {
	m      *Manager
	logger zerolog.Logger

	enabled bool
	paused  bool

	// at most one pending timer per class
	debounce  *time.Timer
	debounceC <-chan time.Time
	boundary  *time.Timer
	boundaryC <-chan time.Time
	nextAt    time.Time

	applying string
	retry    bool             // a different profile matched while applying
	queued   *profile.Profile // manual override waiting for the in-flight apply
	applied  chan applyResult

	lastEval     time.Time
	lastDecision string
	lastErr      string
}

func newLoop(m *Manager) *loop {
	return &loop{
		m:       m,
		logger:  log.With().Str("component", "manager").Logger(),
		enabled: m.opts.Enabled,
		applied: make(chan applyResult, 1),
	}
}

func (l *loop) running() bool { return l.enabled && !l.paused }

// guard runs fn and recovers any panic so the loop keeps serving events.
func (l *loop) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			observability.TimerPanics.Inc()
			l.lastErr = fmt.Sprintf("%s: %v", name, r)
			l.logger.Error().Str("callback", name).Interface("panic", r).Msg("recovered panic; loop continues")
		}
	}()
	fn()
}

func (l *loop) publish() {
	st := Status{
		Enabled:        l.enabled,
		Paused:         l.paused,
		ActiveProfile:  l.m.applier.CurrentProfileID(),
		Applying:       l.applying,
		LastEvaluation: l.lastEval,
		LastDecision:   l.lastDecision,
		NextBoundary:   l.nextAt,
		LastError:      l.lastErr,
	}
	l.m.mu.Lock()
	l.m.status = st
	l.m.mu.Unlock()
}

func (l *loop) onParameter(ev param.Changed) {
	if !l.enabled {
		return
	}
	if l.paused {
		if !l.m.opts.ResumeOnStateChange {
			return
		}
		l.logger.Info().Str("parameter", ev.Name).Msg("state change resumes automatic switching")
		l.setPaused(false)
	}
	l.armDebounce()
}

func (l *loop) armDebounce() {
	if l.debounce != nil {
		if !l.debounce.Stop() {
			select {
			case <-l.debounce.C:
			default:
			}
		}
		l.debounce.Reset(l.m.opts.Debounce)
		observability.DebounceCollapsed.Inc()
		return
	}
	l.debounce = time.NewTimer(l.m.opts.Debounce)
	l.debounceC = l.debounce.C
}

func (l *loop) stopDebounce() {
	if l.debounce != nil {
		l.debounce.Stop()
		l.debounce, l.debounceC = nil, nil
	}
}

func (l *loop) armBoundary(d time.Duration) {
	if l.boundary != nil {
		l.boundary.Stop()
	}
	l.boundary = time.NewTimer(d)
	l.boundaryC = l.boundary.C
	l.nextAt = l.m.opts.Now().Add(d)
	observability.NextBoundary.Set(d.Seconds())
}

func (l *loop) stopTimers() {
	l.stopDebounce()
	if l.boundary != nil {
		l.boundary.Stop()
		l.boundary, l.boundaryC = nil, nil
	}
}

// reschedule arms the boundary timer for the nearest window edge across all
// enabled schedules, never further out than the cap.
func (l *loop) reschedule(ctx context.Context) {
	limit := l.m.opts.BoundaryCap
	l.armBoundary(limit)
	profiles, err := l.m.profiles.List(ctx)
	if err != nil {
		l.logger.Error().Err(err).Dur("retry_in", limit).Msg("list profiles for schedule timer")
		return
	}
	d := engine.NextBoundary(profiles, l.m.opts.Now(), limit)
	l.armBoundary(d)
	l.logger.Debug().Dur("in", d).Msg("schedule timer armed")
}

// evaluate takes a fresh snapshot and applies the winner if it differs
// from the active profile. A failed listing leaves the current profile.
func (l *loop) evaluate(ctx context.Context) {
	profiles, err := l.m.profiles.List(ctx)
	if err != nil {
		l.lastErr = err.Error()
		l.logger.Error().Err(err).Msg("list profiles; keeping current profile")
		return
	}
	now := l.m.opts.Now()
	d := l.m.engine.Evaluate(profiles, engine.Request{
		Snapshot: l.m.params.Snapshot(),
		Now:      now,
		ActiveID: l.m.applier.CurrentProfileID(),
	})
	l.lastEval = now
	l.lastDecision = d.ID()

	switch {
	case d.Profile == nil:
		observability.Evaluations.WithLabelValues("none").Inc()
		l.logger.Debug().Msg("no profile matches; keeping current")
	case !d.Changed:
		observability.Evaluations.WithLabelValues("same").Inc()
	default:
		observability.Evaluations.WithLabelValues("match").Inc()
		l.logger.Info().Str("profile", d.ID()).Int("candidates", d.Candidates).Msg("profile matched")
		l.startApply(ctx, *d.Profile, false)
	}
}

func (l *loop) startApply(ctx context.Context, p profile.Profile, manual bool) {
	if l.applying == p.ID {
		observability.Switches.WithLabelValues("skipped").Inc()
		l.logger.Debug().Str("profile", p.ID).Msg("already being applied")
		return
	}
	if l.applying != "" {
		if manual {
			q := p
			l.queued = &q
		} else {
			l.retry = true
		}
		l.logger.Debug().Str("profile", p.ID).Str("applying", l.applying).Msg("apply in flight; deferred")
		return
	}
	l.applying = p.ID
	from := l.m.applier.CurrentProfileID()
	go func() {
		res := applyResult{p: p, from: from, manual: manual}
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("apply panicked: %v", r)
			}
			l.applied <- res
		}()
		res.err = l.m.applier.Apply(ctx, p)
	}()
}

func (l *loop) onApplied(ctx context.Context, res applyResult) {
	l.applying = ""
	if res.err != nil {
		observability.Switches.WithLabelValues("failed").Inc()
		l.lastErr = res.err.Error()
		l.logger.Error().Err(res.err).Str("profile", res.p.ID).Msg("apply failed; active profile unchanged")
	} else {
		observability.Switches.WithLabelValues("applied").Inc()
		l.lastErr = ""
		l.logger.Info().Str("from", res.from).Str("to", res.p.ID).Bool("manual", res.manual).Msg("profile applied")
		if l.m.opts.OnSwitch != nil {
			l.m.opts.OnSwitch(Switch{From: res.from, To: res.p.ID, Manual: res.manual, At: l.m.opts.Now()})
		}
	}

	if l.queued != nil {
		next := *l.queued
		l.queued = nil
		l.startApply(ctx, next, true)
		return
	}
	if l.retry {
		l.retry = false
		if l.running() {
			l.evaluate(ctx)
		}
	}
}

func (l *loop) setPaused(paused bool) {
	if l.paused == paused {
		return
	}
	l.paused = paused
	if l.m.pause == nil {
		return
	}
	if err := l.m.pause.SetPaused(paused); err != nil {
		l.logger.Error().Err(err).Bool("paused", paused).Msg("persist pause state")
	}
}

func (l *loop) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdManual:
		profiles, err := l.m.profiles.List(ctx)
		if err != nil {
			return fmt.Errorf("list profiles: %w", err)
		}
		p, ok := profile.Find(profiles, cmd.id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownProfile, cmd.id)
		}
		l.logger.Info().Str("profile", p.ID).Msg("manual override; automatic switching paused")
		l.setPaused(true)
		l.stopDebounce()
		l.retry = false
		l.startApply(ctx, p, true)
	case cmdPause:
		l.setPaused(true)
		l.stopDebounce()
	case cmdResume:
		l.setPaused(false)
		if l.running() {
			l.evaluate(ctx)
		}
	case cmdSetEnabled:
		l.enabled = cmd.enabled
		if !l.enabled {
			l.stopDebounce()
			return nil
		}
		l.reschedule(ctx)
		if l.running() {
			l.evaluate(ctx)
		}
	case cmdProfilesChanged:
		l.reschedule(ctx)
		if l.running() {
			l.evaluate(ctx)
		}
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
	return nil
}
