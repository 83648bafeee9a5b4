package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned when no entry exists for a key, or the entry's age
// exceeded the store's TTL.
var ErrMiss = errors.New("cache miss")

// Metadata is the sidecar record persisted next to a payload. Only the
// object proxy writes it; the other variants store payload only and derive
// the content type from the file extension.
type Metadata struct {
	MimeType    string `json:"mime_type"`
	ExternalURI string `json:"external_uri"`
	CachedAt    int64  `json:"cached_at"`
}

// Entry is a cached payload plus whatever is known about it.
type Entry struct {
	Key          string
	Data         []byte
	Meta         *Metadata
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Store is a disk- or memory-backed blob cache keyed by file name.
// Implementations must tolerate concurrent readers and writers for the same
// key: identical keys imply identical payloads, and writes are atomic, so
// last-writer-wins is fine.
type Store interface {
	Get(name string) (*Entry, error)
	Put(name string, data []byte, meta *Metadata) error
	EvictIfOverBudget(maxTotalBytes int64) error
}

// Key derives the deterministic cache key for an origin identity and
// transform tuple. Same inputs always hash to the same key.
func Key(origin string, width, height int, format string, quality int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%d-%s-%d", origin, width, height, format, quality)))
	return hex.EncodeToString(sum[:])
}
