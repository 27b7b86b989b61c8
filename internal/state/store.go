package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

// Store loads and persists one ChatState per chat. Access to a chat's state
// is serialized; different chats never block each other.
type Store struct {
	dir string

	mu    sync.Mutex
	chats map[int64]*entry
}

type entry struct {
	mu    sync.Mutex
	state *ChatState
}

// NewStore creates a Store writing records under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, boterr.NewStateErrorWithCause("failed to create state directory", err)
	}
	return &Store{
		dir:   dir,
		chats: make(map[int64]*entry),
	}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the record file for chatID.
func (s *Store) Path(chatID int64) string {
	return filepath.Join(s.dir, "chat-"+strconv.FormatInt(chatID, 10)+".yaml")
}

// Update applies fn to the chat's state and persists the result before
// returning. If fn fails the state is left unchanged and nothing is written.
func (s *Store) Update(chatID int64, fn func(*ChatState) error) error {
	e := s.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(chatID, e); err != nil {
		return err
	}

	next := e.state.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.save(chatID, next); err != nil {
		return err
	}
	e.state = next
	return nil
}

// Apply is Update for changes that must take effect even when they cannot
// be persisted. The result of fn is kept in memory before the save, and a
// save error is returned without rolling it back. The next successful
// save writes it out.
func (s *Store) Apply(chatID int64, fn func(*ChatState)) error {
	e := s.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(chatID, e); err != nil {
		return err
	}

	next := e.state.Clone()
	fn(next)
	e.state = next
	return s.save(chatID, next)
}

// View calls fn with the chat's state. fn must not modify or retain it.
func (s *Store) View(chatID int64, fn func(*ChatState)) error {
	e := s.entry(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(chatID, e); err != nil {
		return err
	}
	fn(e.state)
	return nil
}

func (s *Store) entry(chatID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chats[chatID]
	if !ok {
		e = &entry{}
		s.chats[chatID] = e
	}
	return e
}

func (s *Store) ensureLoaded(chatID int64, e *entry) error {
	if e.state != nil {
		return nil
	}
	st, err := s.load(chatID)
	if err != nil {
		return err
	}
	e.state = st
	return nil
}

func (s *Store) load(chatID int64) (*ChatState, error) {
	data, err := os.ReadFile(s.Path(chatID))
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, boterr.NewStateErrorWithCause("failed to read chat state", err)
	}
	st, err := decode(data)
	if err != nil {
		return nil, boterr.NewStateErrorWithCause(fmt.Sprintf("chat %d", chatID), err)
	}
	return st, nil
}

// save replaces the record atomically via a temp file and rename.
func (s *Store) save(chatID int64, st *ChatState) error {
	data, err := encode(chatID, st)
	if err != nil {
		return boterr.NewStateErrorWithCause("failed to marshal chat state", err)
	}

	path := s.Path(chatID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return boterr.NewStateErrorWithCause("failed to create temp state file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return boterr.NewStateErrorWithCause("failed to write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return boterr.NewStateErrorWithCause("failed to sync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return boterr.NewStateErrorWithCause("failed to close temp state file", err)
	}

	if err := replaceFile(tmpName, path); err != nil {
		os.Remove(tmpName)
		return boterr.NewStateErrorWithCause("failed to replace state file", err)
	}
	return nil
}
