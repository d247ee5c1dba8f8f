// Package cmsync is a client SDK for the community-management dashboard
// backend. It keeps the signed-in session, talks to the REST API through a
// single gateway, caches reads by key and coordinates writes that
// invalidate them.
//
// A [Client] is assembled with [Builder] and is safe to use from many
// goroutines once [Builder.Build] returns.
//
// # Architecture boundaries
//
// cmsync is the wiring layer. The work is done by sub-packages: token
// (claims decoding), session (identity and persistence), gateway (HTTP),
// query (read cache), mutation (writes) and api (typed endpoints). The root
// package connects them, counts what they do in [Metrics] and turns session
// transitions and failed mutations into [Event] values for the embedding
// application.
//
// # What this package must NOT do
//
//   - Perform I/O during Build. Storage is first read by [Client.Bootstrap].
//   - Render anything. Notifications and navigation leave as events.
//   - Poll the backend. Data is fetched when it is read or prefetched.
package cmsync
