// Package gateway is the single chokepoint between the SDK and the dashboard
// backend.
//
// Every request goes through [Gateway.Call], which attaches the bearer token
// read at call time, encodes the body, applies the request timeout and turns
// every failure into an [*Error] with a human readable message. Nothing else
// in the module talks HTTP.
//
// # Error normalization
//
// Non-2xx responses are parsed for an "error" field, then a "message" field.
// When neither is present, or the body is not JSON, the message is
// "Request failed". Timeouts and transport failures are also reported as
// [*Error] so callers only ever switch on one type.
//
// # What this package must NOT do
//
//   - Cache responses (the query package owns caching).
//   - Mutate session state; a 401 is reported, not acted upon.
//   - Retry requests.
package gateway
