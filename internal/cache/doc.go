// Package cache provides the on-disk stores for synthesized audio.
// A Store is a single directory of MP3 files: content-addressed cache
// entries named by Key, or per-request output files named by a generated
// id. The directory listing is the only index, with count-based and
// age-based eviction.
package cache
