package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// State is the on-disk layout of the state file.
type State struct {
	Version  int                     `json:"version"`
	SavedAt  time.Time               `json:"saved_at"`
	Channels map[string]ChannelState `json:"channels"`
}

type ChannelState struct {
	Target int `json:"target"`
}

// FileStore keeps the last commanded target of every channel in a JSON file.
// The whole file is rewritten on every save.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state State
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:  path,
		state: State{Channels: map[string]ChannelState{}},
	}
}

// Load reads the state file. A missing file leaves the store empty.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "%s: state read failed", s.path)
	}

	state := State{}
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrapf(err, "%s: state decode failed", s.path)
	}
	if state.Channels == nil {
		state.Channels = map[string]ChannelState{}
	}
	s.state = state

	return nil
}

// Target returns the persisted target of a channel.
func (s *FileStore) Target(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, found := s.state.Channels[id]
	return ch.Target, found
}

func (s *FileStore) SaveTarget(id string, target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, found := s.state.Channels[id]; found && current.Target == target {
		return nil
	}
	s.state.Channels[id] = ChannelState{Target: target}

	return s.save()
}

func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, "%s: state directory", s.path)
	}

	s.state.Version = StateVersion
	s.state.SavedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "%s: state write failed", s.path)
	}

	return errors.Wrapf(os.Rename(tmp, s.path), "%s: state write failed", s.path)
}
