// Package listener reacts to profile changes made outside this process.
package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Invalidator is implemented by storage.Repository.
type Invalidator interface {
	Invalidate()
}

// Target receives change signals. Repo is invalidated on every signal;
// Notify runs once per debounced burst.
type Target struct {
	Repo   Invalidator
	Notify func(ctx context.Context) error
}

func (t Target) invalidate() {
	if t.Repo != nil {
		t.Repo.Invalidate()
	}
}

func (t Target) notify(ctx context.Context, source string) {
	if t.Notify == nil {
		return
	}
	log.Info().Str("source", source).Msg("profiles changed; re-evaluating")
	if err := t.Notify(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("source", source).Msg("profile change notification failed")
	}
}

// debounce calls fire once window has passed without a new signal on in.
func debounce(ctx context.Context, in <-chan struct{}, window time.Duration, fire func()) {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(window)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerCh:
					default:
					}
				}
				timer.Reset(window)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			fire()
		}
	}
}

// poke is a non-blocking send; a pending signal already covers this one.
func poke(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x–1.5x
	return time.Duration(float64(base) * factor)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
