// Package api exposes the dashboard backend as typed resources.
//
// Reads go through the query cache under well-known keys ([KeyTickets],
// [PostsKey], ...). Writes are [mutation.Mutation] values that invalidate
// the keys they affect, so callers never have to remember which lists to
// refresh after creating, editing or deleting something.
package api
