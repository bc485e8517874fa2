package kv

import (
	"context"
	"sort"
	"sync"
)

type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]Entry{}}
}

func (m *Memory) Get(ctx context.Context, ns, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[ns][key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return clone(e), nil
}

func (m *Memory) List(ctx context.Context, ns string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.data[ns]))
	for _, e := range m.data[ns] {
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Put(ctx context.Context, ns, key string, value []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[ns]
	if !ok {
		bucket = map[string]Entry{}
		m.data[ns] = bucket
	}
	cur := bucket[key].Version
	if expect != AnyVersion && expect != cur {
		return 0, ErrVersionConflict
	}
	next := cur + 1
	bucket[key] = Entry{Key: key, Value: append([]byte(nil), value...), Version: next}
	return next, nil
}

func (m *Memory) Delete(ctx context.Context, ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[ns][key]; !ok {
		return ErrNotFound
	}
	delete(m.data[ns], key)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func clone(e Entry) Entry {
	e.Value = append([]byte(nil), e.Value...)
	return e
}
