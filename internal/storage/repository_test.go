package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoprofile/internal/profile"
)

type memBackend struct {
	mu     sync.Mutex
	raw    []byte
	reads  int
	writes int
	err    error
}

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(nil), m.raw...), nil
}

func (m *memBackend) Write(_ context.Context, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.raw = append([]byte(nil), raw...)
	return nil
}

func (m *memBackend) set(raw string) {
	m.mu.Lock()
	m.raw = []byte(raw)
	m.mu.Unlock()
}

func TestRepository_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	be := &memBackend{raw: []byte(sampleYAML)}
	decodes := 0
	repo := NewRepository(be, YAMLCodec{}, func([]profile.Profile) error {
		decodes++
		return nil
	})

	ps, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	_, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, be.reads)

	repo.Invalidate()
	_, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, be.reads)
	assert.Equal(t, 1, decodes, "unchanged fingerprint skips decoding")

	be.set("version: 2\nprofiles:\n  - {id: only, name: Only}\n")
	repo.Invalidate()
	ps, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, decodes)
	require.Len(t, ps, 1)
	assert.Equal(t, "only", ps[0].ID)
}

func TestRepository_ListIsCallersCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(&memBackend{raw: []byte(sampleYAML)}, nil, nil)

	ps, err := repo.List(ctx)
	require.NoError(t, err)
	ps[0].Name = "mutated"
	ps[0].Rules[0].Value = "not_connected"

	again, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Office hours", again[0].Name)
	assert.Equal(t, "connected", again[0].Rules[0].Value)
}

func TestRepository_Errors(t *testing.T) {
	ctx := context.Background()

	be := &memBackend{err: errors.New("disk gone")}
	_, err := NewRepository(be, nil, nil).List(ctx)
	assert.ErrorContains(t, err, "disk gone")

	rejected := NewRepository(&memBackend{raw: []byte(sampleYAML)}, nil, func([]profile.Profile) error {
		return errors.New("ambiguous")
	})
	_, err = rejected.List(ctx)
	assert.ErrorContains(t, err, "ambiguous")

	repo := NewRepository(&memBackend{raw: []byte(sampleYAML)}, nil, nil)
	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	p, err := repo.Get(ctx, "saver")
	require.NoError(t, err)
	assert.Equal(t, "Battery saver", p.Name)
}

func TestRepository_FailedReloadKeepsRetrying(t *testing.T) {
	ctx := context.Background()
	be := &memBackend{raw: []byte("version: 9\n")}
	repo := NewRepository(be, nil, nil)

	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, ErrSchemaVersion)

	be.set(sampleYAML)
	ps, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}
