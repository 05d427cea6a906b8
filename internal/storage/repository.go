package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"autoprofile/internal/profile"
)

var ErrNotFound = errors.New("profile not found")

// Repository caches the decoded profile list. A read after Invalidate
// fetches the raw document again but only re-decodes when its fingerprint
// changed.
type Repository struct {
	backend Backend
	codec   Codec
	check   func([]profile.Profile) error

	mu              sync.Mutex
	lastValue       []profile.Profile
	lastFingerprint [sha256.Size]byte
	loaded          bool
	valid           bool
}

// NewRepository wraps backend. check, when non-nil, is run on every freshly
// decoded list; a list that fails it is never served.
func NewRepository(backend Backend, codec Codec, check func([]profile.Profile) error) *Repository {
	if codec == nil {
		codec = YAMLCodec{}
	}
	return &Repository{backend: backend, codec: codec, check: check}
}

// List returns the profiles in user order. The slice is the caller's.
func (r *Repository) List(ctx context.Context) ([]profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.valid {
		if err := r.reload(ctx); err != nil {
			return nil, err
		}
	}
	return cloneAll(r.lastValue), nil
}

func (r *Repository) reload(ctx context.Context) error {
	raw, err := r.backend.Read(ctx)
	if err != nil {
		return err
	}
	fp := sha256.Sum256(raw)
	if r.loaded && fp == r.lastFingerprint {
		r.valid = true
		return nil
	}
	doc, err := Decode(r.codec, raw)
	if err != nil {
		return err
	}
	if r.check != nil {
		if err := r.check(doc.Profiles); err != nil {
			return fmt.Errorf("stored profiles rejected: %w", err)
		}
	}
	r.lastValue = doc.Profiles
	r.lastFingerprint = fp
	r.loaded = true
	r.valid = true
	log.Debug().Int("profiles", len(doc.Profiles)).Msg("profiles reloaded")
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (profile.Profile, error) {
	ps, err := r.List(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	p, ok := profile.Find(ps, id)
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Save encodes and writes the list. Callers invalidate afterwards.
func (r *Repository) Save(ctx context.Context, profiles []profile.Profile) error {
	raw, err := Encode(r.codec, profiles)
	if err != nil {
		return err
	}
	return r.backend.Write(ctx, raw)
}

// Invalidate marks the cached list stale. Safe to call from any goroutine.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

func cloneAll(ps []profile.Profile) []profile.Profile {
	out := make([]profile.Profile, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}
