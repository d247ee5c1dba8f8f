// Package guard decides whether a view may render for the current session.
//
// # Guards
//
//   - [Protected] waits while the session bootstraps, sends signed-out
//     users to [PathAuth] and allows everyone else.
//   - [RequireRole] additionally sends users without the role to
//     [PathDashboard].
//   - [Root] maps the entry path to the dashboard or the login page.
//
// [Await] blocks until the session has finished bootstrapping and then
// evaluates a guard, so callers never act on a [Wait] outcome. [Middleware]
// applies a guard to an http.Handler.
//
// # Architecture boundaries
//
// Guards read session state through [View]. They never log in, log out or
// touch storage.
//
// # What this package must NOT do
//
//   - Decode tokens itself (the session store owns expiry).
//   - Call the backend.
package guard
