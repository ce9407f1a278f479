// Package kvstore provides the key-value stores used for persisted client
// settings: a plain JSON file store and an encrypted store for secrets.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// FileStore keeps all keys in one JSON object on disk. Writes go through a
// temp file and rename, guarded by an flock on a sibling lock file so two
// processes never interleave read-modify-write cycles.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	vals := map[string]string{}
	if len(data) == 0 {
		return vals, nil
	}
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.path), err)
	}
	return vals, nil
}

func (s *FileStore) write(vals map[string]string) error {
	b, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get implements Store.
func (s *FileStore) Get(key string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := s.withLock(func() error {
		vals, err := s.read()
		if err != nil {
			return err
		}
		val, ok = vals[key]
		return nil
	})
	return val, ok, err
}

// Set implements Store.
func (s *FileStore) Set(key, value string) error {
	return s.withLock(func() error {
		vals, err := s.read()
		if err != nil {
			return err
		}
		vals[key] = value
		return s.write(vals)
	})
}

// Delete implements Store.
func (s *FileStore) Delete(key string) error {
	return s.withLock(func() error {
		vals, err := s.read()
		if err != nil {
			return err
		}
		if _, ok := vals[key]; !ok {
			return nil
		}
		delete(vals, key)
		return s.write(vals)
	})
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	vals map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{vals: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}
