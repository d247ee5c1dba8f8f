// Package mockbackend is an in-memory dashboard backend served with echo.
//
// It answers every route the api package calls, signs HS256 bearer tokens
// with [token.Issuer] and keeps all state in process memory. Tests use it
// through httptest.NewServer(srv.Handler()); cmd/cmsync-mock serves it on a
// port for manual runs of cmctl.
//
// Test hooks:
//
//   - [Server.Hits] counts requests per route pattern.
//   - [Server.FailNext] injects one failure on a route.
//   - [Server.ConfirmationToken] and [Server.ResetToken] expose the links
//     a real backend would email.
//   - [Server.SetClock] moves time for link expiry.
//
// # What this package must NOT do
//
//   - Persist anything outside the process.
//   - Be imported by non-test code other than cmd/ binaries.
package mockbackend
