package cache

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// minTempAge protects temp files of writes that are still in flight.
const minTempAge = 10 * time.Minute

// Store is a directory of audio files. It keeps no in-memory index: every
// lookup and eviction decision is made from a fresh directory listing, so
// several processes may share the same directory.
type Store struct {
	basePath string
	ext      string
	logger   *log.Logger
}

// NewStore creates the directory if needed and returns a Store rooted at it.
// A nil logger falls back to the default charmbracelet logger.
func NewStore(basePath string, logger *log.Logger) (*Store, error) {
	if basePath == "" {
		return nil, errors.New("store path is empty")
	}

	// Create cache directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}

	return &Store{
		basePath: basePath,
		ext:      ttypes.AudioExt,
		logger:   logger,
	}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.basePath
}

// Lookup returns the path of the artifact stored under key. Existence of a
// regular file is the only criterion; contents are not verified.
func (s *Store) Lookup(key Key) (string, bool) {
	path := filepath.Join(s.basePath, key.FileName())
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// Put writes payload under key, replacing any existing artifact.
func (s *Store) Put(key Key, payload []byte) (string, error) {
	return s.WriteFile(key.FileName(), payload)
}

// WriteFile writes payload to name inside the store and returns its path.
func (s *Store) WriteFile(name string, payload []byte) (string, error) {
	if err := s.validateName(name); err != nil {
		return "", err
	}

	path := filepath.Join(s.basePath, name)
	if err := s.writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Import copies the file at src into the store under key.
func (s *Store) Import(key Key, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close() //nolint:errcheck

	path := filepath.Join(s.basePath, key.FileName())
	if err := s.writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return "", fmt.Errorf("failed to import %s: %w", key, err)
	}
	return path, nil
}

// Resolve maps a bare file name to its path inside the store. Names with
// directory components or a foreign extension are rejected with
// ErrInvalidName; missing files yield ErrCacheMiss.
func (s *Store) Resolve(name string) (string, error) {
	if err := s.validateName(name); err != nil {
		return "", err
	}

	path := filepath.Join(s.basePath, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrCacheMiss
	}
	return path, nil
}

// Entries lists the audio files currently in the store. Files that vanish
// between the listing and the stat are skipped.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.basePath, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !s.isArtifact(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			s.logger.Debug("Skipping entry", "name", de.Name(), "err", err)
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(s.basePath, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// EvictExcess deletes the oldest entries (by modification time, then name)
// until at most maxEntries remain. A negative maxEntries disables eviction.
func (s *Store) EvictExcess(maxEntries int) EvictionReport {
	var report EvictionReport
	if maxEntries < 0 {
		return report
	}

	s.sweepTemp(minTempAge, time.Now())

	entries, err := s.Entries()
	if err != nil {
		s.logger.Error("Error cleaning cache", "dir", s.basePath, "err", err)
		return report
	}
	report.Scanned = len(entries)

	if len(entries) <= maxEntries {
		return report
	}

	// Oldest first
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	for _, e := range entries[:len(entries)-maxEntries] {
		s.remove(e, &report)
	}
	return report
}

// EvictStale deletes every entry whose age at now exceeds maxAge. Temp files
// left behind by interrupted writes go too, once they are older than both
// maxAge and minTempAge.
func (s *Store) EvictStale(maxAge time.Duration, now time.Time) EvictionReport {
	var report EvictionReport

	s.sweepTemp(max(maxAge, minTempAge), now)

	entries, err := s.Entries()
	if err != nil {
		s.logger.Error("Error cleaning output", "dir", s.basePath, "err", err)
		return report
	}
	report.Scanned = len(entries)

	for _, e := range entries {
		if e.Age(now) > maxAge {
			s.remove(e, &report)
		}
	}
	return report
}

// Clear removes every audio file in the store.
func (s *Store) Clear() EvictionReport {
	return s.EvictExcess(0)
}

// Stats returns the current entry count and total size.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.Entries()
	if err != nil {
		return Stats{Dir: s.basePath}, err
	}

	stats := Stats{Dir: s.basePath, ItemCount: len(entries)}
	for _, e := range entries {
		stats.Size += e.Size
		if stats.Oldest.IsZero() || e.ModTime.Before(stats.Oldest) {
			stats.Oldest = e.ModTime
		}
		if e.ModTime.After(stats.Newest) {
			stats.Newest = e.ModTime
		}
	}
	return stats, nil
}

// Private helper methods

func (s *Store) isArtifact(name string) bool {
	return !strings.HasPrefix(name, ".") && filepath.Ext(name) == s.ext
}

func (s *Store) validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !s.isArtifact(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) remove(e Entry, report *EvictionReport) {
	if err := os.Remove(e.Path); err != nil {
		report.Failed++
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("Entry already removed", "name", e.Name)
			return
		}
		s.logger.Warn("Could not remove entry", "name", e.Name, "err", err)
		return
	}
	report.Removed = append(report.Removed, e.Name)
	report.Freed += e.Size
	s.logger.Debug("Removed entry", "name", e.Name, "dir", s.basePath)
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// sweepTemp removes writeAtomic temp files older than maxAge. They are not
// entries, so they never show up in an EvictionReport.
func (s *Store) sweepTemp(maxAge time.Duration, now time.Time) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return
	}
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !isTempFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		path := filepath.Join(s.basePath, de.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Could not remove temp file", "name", de.Name(), "err", err)
			continue
		}
		s.logger.Debug("Removed temp file", "name", de.Name(), "dir", s.basePath)
	}
}

// writeAtomic writes to a hidden temp file in the same directory and renames
// it into place. Concurrent writers of the same path each use their own temp
// file; the last rename wins.
func (s *Store) writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(s.basePath, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tempPath := tmp.Name()

	err = tmp.Chmod(0o644)
	if err == nil {
		err = write(tmp)
	}
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tempPath) //nolint:errcheck
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath) //nolint:errcheck
		return closeErr
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath) //nolint:errcheck
		return err
	}
	return nil
}
