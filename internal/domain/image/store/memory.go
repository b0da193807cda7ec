package store

import (
	"context"
	"sort"
	"sync"

	"matrix-server-go/internal/domain/image"
)

type memoryEntry struct {
	meta image.Image
	data []byte
}

type memoryStore struct {
	items map[string]memoryEntry
	mutex sync.RWMutex
}

// NewMemory builds an in-memory image store. Contents are lost on restart.
func NewMemory() Store {
	return &memoryStore{items: make(map[string]memoryEntry)}
}

func (s *memoryStore) Save(_ context.Context, meta image.Image, data []byte) (image.Image, error) {
	meta = prepare(meta, data)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mutex.Lock()
	s.items[meta.ID] = memoryEntry{meta: meta, data: buf}
	s.mutex.Unlock()
	return meta, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*image.Image, error) {
	s.mutex.RLock()
	entry, ok := s.items[id]
	s.mutex.RUnlock()
	if !ok {
		return nil, nil
	}
	meta := entry.meta
	return &meta, nil
}

func (s *memoryStore) GetBinaryByID(_ context.Context, id string) ([]byte, error) {
	s.mutex.RLock()
	entry, ok := s.items[id]
	s.mutex.RUnlock()
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

func (s *memoryStore) List(_ context.Context) ([]image.Image, error) {
	s.mutex.RLock()
	out := make([]image.Image, 0, len(s.items))
	for _, entry := range s.items {
		out = append(out, entry.meta)
	}
	s.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var bytes int64
	for _, entry := range s.items {
		bytes += entry.meta.Size
	}
	return map[string]any{
		"type":  DriverMemory,
		"total": len(s.items),
		"bytes": bytes,
	}, nil
}

func (s *memoryStore) Driver() string {
	return DriverMemory
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
