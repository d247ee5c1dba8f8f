// Package mutation coordinates state-changing backend calls.
//
// A [Mutation] wraps one operation (create a ticket, delete a post, ...)
// and exposes its pending, success and error state. On success it
// invalidates the query-cache keys the operation affects before the
// success state becomes visible and before the success callback runs, so a
// callback that reads the cache always sees fresh data being fetched.
//
// [Message] turns any error the SDK can produce into the single string that
// should be shown to a user.
package mutation
