package cache

import (
	"time"

	"github.com/quasarhq/quasar/internal/language"
)

// Key identifies a cached file within a sandbox session. Two sessions never
// share entries; switching sessions invalidates the old namespace wholesale.
type Key struct {
	SessionID string
	Path      string
}

// Entry is one cached file's content plus metadata.
type Entry struct {
	Content  string
	Language string

	// SizeBytes is an approximation of the content's memory footprint
	// (2x character length, not exact UTF-8 sizing). Eviction timing is
	// tuned against this approximation; do not replace with exact counts.
	SizeBytes int64

	LastModified time.Time
	LastAccessed time.Time
	TTL          time.Duration
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.LastAccessed) > e.TTL
}

const (
	largeFileThreshold = 1 << 20 // 1 MiB

	largeFileTTL = 5 * time.Minute
	highValueTTL = 15 * time.Minute
	defaultTTL   = 10 * time.Minute
)

// ttlFor computes the expiry window for a new entry. Large files churn
// memory fast and expire sooner; frequently reopened source/config/doc
// files survive longer.
func ttlFor(path string, sizeBytes int64) time.Duration {
	switch {
	case sizeBytes > largeFileThreshold:
		return largeFileTTL
	case language.IsHighValue(path):
		return highValueTTL
	default:
		return defaultTTL
	}
}

// approxSize estimates the in-memory footprint of content. The 2x factor is
// a deliberate approximation carried over from the behavior being modeled.
func approxSize(content string) int64 {
	return int64(2 * len(content))
}
