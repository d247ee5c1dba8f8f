// Package internal holds packages that are private to cmsync.
//
// # Sub-packages
//
//   - events: async event dispatch (Dispatcher + Sink implementations)
//   - mockbackend: in-memory dashboard backend for tests, examples and local runs
//
// # What this package must NOT do
//
//   - Export types that appear in the public cmsync API except through aliases.
//   - Be imported by any package outside the cmsync module.
package internal
