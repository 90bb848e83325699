// Package webhook implements the inbound HTTP boundary for GitHub webhook
// events.
//
// The server listens for "create" events on the root path, verifies the
// payload's HMAC-SHA256 signature against the raw request bytes, and hands
// validated ref creation events to a handler. Everything else is mapped to
// a small, fixed set of JSON responses:
//
//   - 405: wrong HTTP method
//   - 404: unknown path
//   - 400: missing event header, oversized body, malformed payload,
//     missing or invalid payload signature
//   - 200 with an info message: events the service does not act on
//   - 500 with a generic message: anything unexpected (cause logged in
//     full, never leaked to the caller)
//
// # Security Model
//
//   - Signatures are verified with crypto/subtle constant-time comparison
//     over the untouched raw bytes, before any JSON decoding, because
//     re-serialization can change byte-for-byte content.
//   - Body size is capped at 256 KiB before verification.
//   - Running without a configured secret accepts every payload; this is a
//     logged relaxation for non-production use, not an error.
package webhook
