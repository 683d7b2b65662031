package repository

import "context"

// NamespacedKVStore prefixes every key, giving each chat its own fixed key set
type NamespacedKVStore struct {
	store  KVStore
	prefix string
}

// Namespace wraps store so "user" becomes "<ns>:user"
func Namespace(store KVStore, ns string) *NamespacedKVStore {
	return &NamespacedKVStore{store: store, prefix: ns + ":"}
}

func (s *NamespacedKVStore) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *NamespacedKVStore) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s *NamespacedKVStore) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.store.Delete(ctx, full...)
}

var (
	_ KVStore = (*SQLiteKVStore)(nil)
	_ KVStore = (*RedisKVStore)(nil)
	_ KVStore = (*NamespacedKVStore)(nil)
)
