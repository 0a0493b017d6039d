// Package cache stores synthesized sentence audio in a two-level cache (an
// in-memory LRU in front of a zstd-compressed disk store) and keeps the most
// recently loaded document under a single namespaced key with a freshness
// window.
package cache
