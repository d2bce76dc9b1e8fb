// Package persist is the durable key-value boundary. Stores that survive a
// process restart write through a Store; everything else stays in memory.
package persist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gmsas95/carecache/internal/config"
)

// ErrNotFound is returned by Get for a key that was never set or was removed.
var ErrNotFound = errors.New("persist: key not found")

// Store is an async-safe get/set/remove key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open selects a backend from storage config.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "badger":
		path := cfg.BadgerPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "badger")
		}
		return OpenBadger(path)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "carecache.db")
		}
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

type scoped struct {
	Store
	namespace string
}

// Scoped returns a view of s whose keys live under namespace.
func Scoped(s Store, namespace string) Store {
	return &scoped{Store: s, namespace: namespace}
}

func (s *scoped) key(k string) string {
	return s.namespace + ":" + k
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.Store.Get(ctx, s.key(key))
}

func (s *scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.Store.Set(ctx, s.key(key), value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.Store.Remove(ctx, s.key(key))
}

// Close on a scoped view is a no-op; the owner closes the backing store.
func (s *scoped) Close() error {
	return nil
}

// Memory is an in-process Store. It does not survive a restart on its own
// but can be shared between store instances to simulate one.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, v...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Len reports the number of keys held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
