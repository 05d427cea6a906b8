package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type state struct {
	Paused bool `yaml:"paused"`
}

// StateFile persists the manual-override pause flag.
type StateFile struct {
	path string
	mu   sync.Mutex
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (f *StateFile) Paused() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state: %w", err)
	}
	var st state
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return false, fmt.Errorf("decode state: %w", err)
	}
	return st.Paused, nil
}

func (f *StateFile) SetPaused(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := yaml.Marshal(state{Paused: paused})
	if err != nil {
		return err
	}
	return writeAtomic(f.path, raw)
}
