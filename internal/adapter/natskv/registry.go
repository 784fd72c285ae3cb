// Package natskv implements the tool registry port on NATS JetStream KV.
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

const bucketName = "taskfleet-tools"

// Store keeps tool enablement flags in a JetStream KeyValue bucket.
// Flags are stored as "true"/"false"; absent keys default to enabled.
type Store struct {
	kv jetstream.KeyValue
}

// Open ensures the tools bucket exists and returns a store over it.
func Open(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucketName, err)
	}
	return &Store{kv: kv}, nil
}

// New wraps an existing KeyValue bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Enabled reports whether the key is enabled. Missing keys are enabled.
func (s *Store) Enabled(ctx context.Context, key string) (bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return string(entry.Value()) != "false", nil
}

// SetEnabled flips the flag for the key.
func (s *Store) SetEnabled(ctx context.Context, key string, enabled bool) error {
	value := "true"
	if !enabled {
		value = "false"
	}
	if _, err := s.kv.Put(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Keys lists all known flag keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	var out []string
	for key := range lister.Keys() {
		out = append(out, key)
	}
	return out, nil
}
