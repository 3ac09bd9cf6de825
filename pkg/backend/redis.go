package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces all keys written by the Redis backend.
const DefaultRedisKeyPrefix = "proxycache"

// Redis is a backend on top of a Redis server.
//
// Key layout:
//
//	<prefix>:entry:<id>       serialized entry, native TTL
//	<prefix>:entry-tags:<id>  set of the entry's tags, same TTL
//	<prefix>:tag:<tag>        set of identifiers carrying the tag
//
// Tag sets are not expired; members whose entry has expired are pruned
// on lookup.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a new Redis backend using DefaultRedisKeyPrefix.
func NewRedis(client *redis.Client) *Redis {
	return NewRedisWithPrefix(client, DefaultRedisKeyPrefix)
}

// NewRedisWithPrefix creates a new Redis backend with a custom key prefix.
func NewRedisWithPrefix(client *redis.Client, prefix string) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

func (r *Redis) entryKey(id string) string {
	return r.prefix + ":entry:" + id
}

func (r *Redis) entryTagsKey(id string) string {
	return r.prefix + ":entry-tags:" + id
}

func (r *Redis) tagKey(tag string) string {
	return r.prefix + ":tag:" + tag
}

// Get returns the stored bytes for id.
func (r *Redis) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores data under id, replacing any previous entry and its tags.
func (r *Redis) Set(ctx context.Context, id string, data []byte, tags []string, ttl time.Duration) error {
	oldTags, err := r.client.SMembers(ctx, r.entryTagsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, tag := range oldTags {
		pipe.SRem(ctx, r.tagKey(tag), id)
	}
	pipe.Del(ctx, r.entryTagsKey(id))
	pipe.Set(ctx, r.entryKey(id), data, ttl)
	if len(tags) > 0 {
		members := make([]interface{}, len(tags))
		for i, tag := range tags {
			members[i] = tag
			pipe.SAdd(ctx, r.tagKey(tag), id)
		}
		pipe.SAdd(ctx, r.entryTagsKey(id), members...)
		if ttl > 0 {
			pipe.Expire(ctx, r.entryTagsKey(id), ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Has reports whether an entry exists for id.
func (r *Redis) Has(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.entryKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Remove deletes the entry for id and drops it from its tag sets.
func (r *Redis) Remove(ctx context.Context, id string) error {
	tags, err := r.client.SMembers(ctx, r.entryTagsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, tag := range tags {
		pipe.SRem(ctx, r.tagKey(tag), id)
	}
	pipe.Del(ctx, r.entryKey(id), r.entryTagsKey(id))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// FindIdentifiersByTag returns the sorted identifiers of existing entries carrying tag.
func (r *Redis) FindIdentifiersByTag(ctx context.Context, tag string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.tagKey(tag)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	pipe := r.client.Pipeline()
	exists := make([]*redis.IntCmd, len(members))
	for i, id := range members {
		exists[i] = pipe.Exists(ctx, r.entryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis exists: %w", err)
	}

	ids := make([]string, 0, len(members))
	var stale []interface{}
	for i, id := range members {
		if exists[i].Val() > 0 {
			ids = append(ids, id)
		} else {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.tagKey(tag), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis srem: %w", err)
		}
	}

	sort.Strings(ids)
	return ids, nil
}
