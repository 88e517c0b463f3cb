// Package storage provides durable storage for thinker sessions, pending
// plans and event logs using NATS KV.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each record type.
const (
	BucketSessions     = "THINKER_SESSIONS"
	BucketPendingPlans = "THINKER_PENDING_PLANS"
	BucketEvents       = "THINKER_EVENTS"
	BucketMemory       = "THINKER_MEMORY"
	BucketDocuments    = "THINKER_DOCUMENTS"
)

// DurableStore is the keyed document store the higher-level stores are built
// on. Implementations must return ErrNotFound from Get when the key is
// missing. Tests substitute an in-memory fake.
type DurableStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// KV is a DurableStore backed by a NATS JetStream KV bucket.
type KV struct {
	kv jetstream.KeyValue
}

// OpenKV opens the named KV bucket, creating it if it doesn't exist.
func OpenKV(ctx context.Context, js jetstream.JetStream, bucket string) (*KV, error) {
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return &KV{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Thinker %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Put stores a value under the key.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get retrieves the value for a key, or ErrNotFound.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys in the bucket. An empty bucket returns nil, nil.
func (s *KV) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
