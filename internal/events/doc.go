// Package events delivers client events (notifications and navigation
// requests) asynchronously to a caller-supplied sink.
//
// # Components
//
//   - [Sink] is implemented by event consumers (channel, JSON lines, no-op).
//   - [Dispatcher] relays notifications through a buffer that either drops or
//     blocks when full, and navigations through a single latest-wins slot
//     that admits one navigation per session epoch.
//   - [Event] is one notification or navigation request.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Which events exist is decided by
// the root package's session listener.
//
// # What this package must NOT do
//
//   - Filter notifications.
//   - Import cmsync or any sibling internal package.
package events
