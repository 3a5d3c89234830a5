// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     store
// Description: Persistence of registry instances (memory, SQLite, Redis)
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	registrypb "github.com/msto63/grpc-sample/api/registry"
	"github.com/msto63/grpc-sample/pkg/core/config"
	"github.com/msto63/grpc-sample/pkg/core/discovery"
	coreerrors "github.com/msto63/grpc-sample/pkg/core/errors"
)

// Store persists registered instances keyed by id
type Store interface {
	// Put inserts or replaces the instance
	Put(ctx context.Context, info *discovery.ServiceInfo) error
	// Get returns discovery.ErrNotFound for unknown ids
	Get(ctx context.Context, id string) (*discovery.ServiceInfo, error)
	// Delete removes the instance; unknown ids are not an error
	Delete(ctx context.Context, id string) error
	// List returns all instances sorted by id
	List(ctx context.Context) ([]*discovery.ServiceInfo, error)
	Close() error
}

// Open creates the store the registry configuration selects
func Open(cfg config.RegistryConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(SQLiteConfig{Path: cfg.SQLitePath})
	case "redis":
		return NewRedisStore(RedisConfig{Address: cfg.RedisAddress, Prefix: cfg.RedisPrefix})
	default:
		return nil, coreerrors.Newf("unknown registry store %q", cfg.Store).
			WithCode(coreerrors.CodeInvalidConfig).
			WithOperation("store.Open")
	}
}

func notFound(id string) error {
	return coreerrors.Wrapf(discovery.ErrNotFound, "instance %s", id).WithOperation("store")
}

func storageError(op string, err error) error {
	return coreerrors.Wrap(err, "registry store").
		WithCode(coreerrors.CodeStorageError).
		WithOperation(op)
}

// encode and decode use the registry wire form so every backend stores
// the same document.
func encode(info *discovery.ServiceInfo) ([]byte, error) {
	return json.Marshal(discovery.ToInstance(info))
}

func decode(data []byte) (*discovery.ServiceInfo, error) {
	var inst registrypb.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return discovery.FromInstance(&inst), nil
}

// MemoryStore keeps instances in a map
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*discovery.ServiceInfo
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]*discovery.ServiceInfo)}
}

func (s *MemoryStore) Put(_ context.Context, info *discovery.ServiceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[info.ID] = info.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*discovery.ServiceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.instances[id]
	if !ok {
		return nil, notFound(id)
	}
	return info.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*discovery.ServiceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*discovery.ServiceInfo, 0, len(s.instances))
	for _, info := range s.instances {
		out = append(out, info.Clone())
	}
	discovery.SortByID(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
