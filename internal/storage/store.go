package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"autoprofile/internal/engine"
	"autoprofile/internal/profile"
	"autoprofile/internal/schedule"
)

var (
	ErrInvalid  = errors.New("invalid profile")
	ErrConflict = errors.New("conflicting profile")
	ErrExists   = errors.New("profile id already exists")
)

// ValidationError carries the structured result of a failed validation.
type ValidationError struct {
	Result profile.Result
}

func (e *ValidationError) Error() string { return ErrInvalid.Error() + ": " + e.Result.Error() }
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// ConflictError names the stored profile that would tie with the candidate.
type ConflictError struct {
	With profile.Profile
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: ambiguous with %q (%s)", ErrConflict, e.With.ID, e.With.Name)
}
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Store is the write path for profiles: every write is validated and
// conflict-checked against the current list before it is persisted.
type Store struct {
	repo *Repository
	eng  *engine.Engine

	mu       sync.Mutex // serializes writers
	onChange func(ctx context.Context)
}

func NewStore(repo *Repository, eng *engine.Engine) *Store {
	return &Store{repo: repo, eng: eng}
}

// OnChange registers fn to run after every successful write.
func (s *Store) OnChange(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) List(ctx context.Context) ([]profile.Profile, error) { return s.repo.List(ctx) }

func (s *Store) Get(ctx context.Context, id string) (profile.Profile, error) {
	return s.repo.Get(ctx, id)
}

func (s *Store) Validate(p profile.Profile) profile.Result {
	return profile.Validate(p, s.eng.Registry())
}

// Conflict returns the stored profile p would be ambiguous with, ignoring
// excludeID.
func (s *Store) Conflict(ctx context.Context, p profile.Profile, excludeID string) (*profile.Profile, error) {
	ps, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.eng.Conflict(ps, normalize(p), excludeID), nil
}

func (s *Store) Create(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ps, err := s.repo.List(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	if _, ok := profile.Find(ps, p.ID); ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrExists, p.ID)
	}
	if err := s.check(ps, p, ""); err != nil {
		return profile.Profile{}, err
	}
	p = normalize(p)
	if err := s.commit(ctx, append(ps, p)); err != nil {
		return profile.Profile{}, err
	}
	log.Info().Str("profile", p.ID).Str("name", p.Name).Msg("profile created")
	return p, nil
}

// Update replaces the profile stored under id, keeping its list position.
// Ids are immutable.
func (s *Store) Update(ctx context.Context, id string, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		res := profile.Result{Valid: false, Errors: []profile.FieldError{{Field: "id", Message: "cannot be changed"}}}
		return profile.Profile{}, &ValidationError{Result: res}
	}
	ps, err := s.repo.List(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	idx := indexOf(ps, id)
	if idx < 0 {
		return profile.Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.check(ps, p, id); err != nil {
		return profile.Profile{}, err
	}
	p = normalize(p)
	ps[idx] = p
	if err := s.commit(ctx, ps); err != nil {
		return profile.Profile{}, err
	}
	log.Info().Str("profile", id).Msg("profile updated")
	return p, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(ps, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.commit(ctx, append(ps[:idx], ps[idx+1:]...)); err != nil {
		return err
	}
	log.Info().Str("profile", id).Msg("profile deleted")
	return nil
}

// Reorder rewrites list order. ids must name every stored profile exactly once.
func (s *Store) Reorder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	var res profile.Result
	if len(ids) != len(ps) {
		res.Errors = append(res.Errors, profile.FieldError{
			Field:   "ids",
			Message: fmt.Sprintf("expected %d ids, got %d", len(ps), len(ids)),
		})
		return &ValidationError{Result: res}
	}
	out := make([]profile.Profile, 0, len(ps))
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		idx := indexOf(ps, id)
		switch {
		case idx < 0:
			res.Errors = append(res.Errors, profile.FieldError{Field: fmt.Sprintf("ids[%d]", i), Message: "unknown profile " + id})
		case seen[id]:
			res.Errors = append(res.Errors, profile.FieldError{Field: fmt.Sprintf("ids[%d]", i), Message: "duplicate id " + id})
		default:
			seen[id] = true
			out = append(out, ps[idx])
		}
	}
	if len(res.Errors) > 0 {
		return &ValidationError{Result: res}
	}
	return s.commit(ctx, out)
}

func (s *Store) check(ps []profile.Profile, p profile.Profile, excludeID string) error {
	if res := profile.Validate(p, s.eng.Registry()); !res.Valid {
		return &ValidationError{Result: res}
	}
	if other := s.eng.Conflict(ps, p, excludeID); other != nil {
		return &ConflictError{With: *other}
	}
	return nil
}

func (s *Store) commit(ctx context.Context, ps []profile.Profile) error {
	if err := s.repo.Save(ctx, ps); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	s.repo.Invalidate()
	if s.onChange != nil {
		s.onChange(ctx)
	}
	return nil
}

func normalize(p profile.Profile) profile.Profile {
	if p.Schedule != nil {
		sc := schedule.Normalize(*p.Schedule)
		p.Schedule = &sc
	}
	return p
}

func indexOf(ps []profile.Profile, id string) int {
	for i := range ps {
		if ps[i].ID == id {
			return i
		}
	}
	return -1
}
