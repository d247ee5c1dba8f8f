// Package query is the resource query cache: keyed server state with request
// de-duplication, generation ordering and invalidation.
//
// # Generations
//
// Every fetch issued for a key is stamped with a generation number and the
// session epoch current at issue time. A response is applied only when no
// newer generation has been applied for that key and the epoch has not
// changed. Concurrent readers of the same generation share one fetch through
// singleflight.
//
// # Invalidation
//
// [Cache.Invalidate] marks every entry under a key prefix stale. The next
// [Get] issues a new generation even if an older fetch is still running.
// Keys that currently have observers and a known fetcher are refetched in
// the background right away.
//
// # Eviction
//
// Entries without observers are tracked in a bounded LRU and dropped when it
// overflows. Observed entries are never evicted.
//
// # What this package must NOT do
//
//   - Perform HTTP itself (fetchers are supplied by callers).
//   - Poll; refetches only follow reads and invalidations.
package query
