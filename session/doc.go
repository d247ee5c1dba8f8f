// Package session owns the client's authenticated identity: the bearer token,
// the user it describes, and the one-time bootstrap from persisted storage.
//
// # Lifecycle
//
// A [Store] starts in the loading state. [Store.Bootstrap] reads the
// persisted token once, restores the user when the token is still valid and
// clears storage otherwise. [Store.Login] and [Store.Logout] replace or
// destroy the session wholesale and bump the session epoch, which the query
// cache uses to drop responses that belong to a previous identity.
//
// Expiry is evaluated on every read against the store clock, so a session
// whose token expires while the process is running reads as logged out.
//
// # Storage
//
// [Storage] abstracts the persisted key/value pairs. [MemoryStorage] is for
// tests and ephemeral processes, [FileStorage] writes atomically through a
// temp file and rename, and [RedisStorage] shares one session between
// several processes.
//
// # What this package must NOT do
//
//   - Import cmsync, gateway or query (no upward imports).
//   - Verify token signatures (the backend does that).
//   - Perform network calls.
package session
