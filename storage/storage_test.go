package storage

import (
	"context"
	"errors"
	"sync"
)

// fakeDurable is an in-memory DurableStore for tests. FailPut, FailGet and
// FailDelete force the corresponding operation to error.
type fakeDurable struct {
	mu         sync.Mutex
	data       map[string][]byte
	FailPut    bool
	FailGet    bool
	FailDelete bool
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{data: make(map[string][]byte)}
}

func (f *fakeDurable) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPut {
		return errors.New("durable put failed")
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeDurable) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGet {
		return nil, errors.New("durable get failed")
	}
	value, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (f *fakeDurable) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete {
		return errors.New("durable delete failed")
	}
	delete(f.data, key)
	return nil
}

func (f *fakeDurable) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for key := range f.data {
		keys = append(keys, key)
	}
	return keys, nil
}
