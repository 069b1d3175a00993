package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Backend.Get for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Backend stores opaque values grouped by tag, so that a whole group can be
// dropped at once.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, tag, key string, val []byte, ttl time.Duration) error
	InvalidateTag(ctx context.Context, tag string) error
}

// RedisBackend keeps values as plain keys and tags as sets of those keys.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) tagKey(tag string) string {
	return b.prefix + "tag:" + tag
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (b *RedisBackend) Set(ctx context.Context, tag, key string, val []byte, ttl time.Duration) error {
	tagKey := b.tagKey(tag)
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.prefix+key, val, ttl)
	pipe.SAdd(ctx, tagKey, b.prefix+key)
	pipe.Expire(ctx, tagKey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) InvalidateTag(ctx context.Context, tag string) error {
	tagKey := b.tagKey(tag)
	keys, err := b.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return err
	}
	return b.client.Del(ctx, append(keys, tagKey)...).Err()
}

// Ping reports whether Redis answers.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type memoryEntry struct {
	tag     string
	val     []byte
	expires time.Time
}

// MemoryBackend is the in-process fallback. Expired entries are dropped lazily.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if b.now().After(e.expires) {
		delete(b.entries, key)
		return nil, ErrMiss
	}
	return e.val, nil
}

func (b *MemoryBackend) Set(_ context.Context, tag, key string, val []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{tag: tag, val: val, expires: b.now().Add(ttl)}
	return nil
}

func (b *MemoryBackend) InvalidateTag(_ context.Context, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, e := range b.entries {
		if e.tag == tag {
			delete(b.entries, k)
		}
	}
	return nil
}

// Clear drops everything.
func (b *MemoryBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]memoryEntry)
}
