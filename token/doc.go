// Package token decodes the dashboard's bearer tokens on the client side and
// issues them for the fake backend used in tests and local development.
//
// # Decoding
//
// [Decode] and [IsValid] never verify signatures: the client only needs the
// embedded identity and expiry to decide whether a stored credential is still
// usable, so only the middle segment is read. Any structural problem is reported as an error wrapping
// [ErrMalformed]; nothing in this package panics on hostile input.
//
// # Issuing
//
// [Issuer] signs and verifies tokens with HS256 or Ed25519. Only the fake
// backend and tests use it; production tokens come from the real backend.
//
// # What this package must NOT do
//
//   - Read or write token storage (the session store owns persistence).
//   - Perform network calls.
package token
