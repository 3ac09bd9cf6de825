// Package backend provides storage backends for the proxy cache.
//
// All backends implement cache.Backend: a tagged key/value store with
// per-entry expiry. A ttl of 0 stores an entry without expiry.
//
//   - Memory: in-process map with a tag index, for tests and single instances
//   - Redis: shared backend using native key expiry and tag sets
//   - SQLite: embedded persistent backend (pure-Go driver, no cgo)
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	store := cache.NewStore(backend.NewRedis(redisClient))
package backend
