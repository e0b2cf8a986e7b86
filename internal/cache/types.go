package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrCacheMiss is returned when an item is not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidName is returned when a requested file name escapes the store
	ErrInvalidName = errors.New("invalid file name")
)

// Entry describes one file in a store.
type Entry struct {
	Name    string    // File name, including extension
	Path    string    // Absolute or root-relative path
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
}

// Age returns how long ago the entry was last modified.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ModTime)
}

// Stats summarises a store's directory contents.
type Stats struct {
	Dir       string
	ItemCount int
	Size      int64 // Bytes
	Oldest    time.Time
	Newest    time.Time
}

// EvictionReport summarises one eviction pass.
type EvictionReport struct {
	Scanned int      // Entries examined
	Removed []string // Names of deleted entries
	Failed  int      // Entries that could not be deleted
	Freed   int64    // Bytes released
}

// RemovedCount returns the number of deleted entries.
func (r EvictionReport) RemovedCount() int {
	return len(r.Removed)
}
