// Package cache implements a content-addressed response cache with a fixed TTL.
//
// Entries are keyed by ComputeKey(input), the hex SHA-256 of the trimmed, lowercased
// input text, so identical task text submitted from different sessions shares one entry.
// Each logical cache (subtasks, workflow blueprints, scraped job text) is a Cache[T]
// with its own namespace and TTL over a shared ports.Store.
//
// Every cache operation is best-effort. Missing, expired, corrupted and unreadable
// entries all surface as a plain miss; failed writes are logged and dropped. Callers
// only ever see hit or miss, and fall through to the authoritative compute path.
//
// The compute source behind the cache is an LLM and is not deterministic: two
// computations for the same key may differ, and the cache keeps whichever result
// was written last.
package cache
