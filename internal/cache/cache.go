// Package cache stores classifier verdicts so re-running over the same
// thumbnails does not spend model quota twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// keyPrefix versions the key space; bump it when the verdict format changes
const keyPrefix = "thumbsieve:v1:"

// Cache is a byte-value store with per-entry expiry
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from the given parts (e.g. purpose, model, image digest)
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// ContentDigest returns the hex sha256 of data
func ContentDigest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
