// Package githubapp implements a GitHub API client that authenticates as a
// GitHub App installed in a single organization.
//
// The client obtains an installation access token on startup and renews it
// when the GitHub API rejects it with 401 Unauthorized. Requests that fail
// at the network level are retried with exponential backoff for up to five
// minutes.
//
// # Concurrency
//
// A single Client is safe for concurrent use by any number of goroutines.
// The installation token lives behind a read-write mutex: readers never
// block each other, and a pending refresh blocks new readers so it cannot
// be starved. When several requests observe the same expired token, only
// one performs the network refresh; the rest pick up its result.
//
// # Token lifetime
//
// GitHub does not tell this client when an installation token expires, so
// expiry is discovered reactively through a 401 response. If GitHub ever
// signals expiry with a different status code the client will treat it as
// an ordinary client error and not refresh.
package githubapp
