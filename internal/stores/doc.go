// Package stores contains the durable token store: the single Redis-backed
// component that decides whether a token record exists. Records are
// versioned binary blobs with a TTL equal to their logical lifetime, so the
// store never needs a sweep process.
package stores
