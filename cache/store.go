// cache/store.go
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is the sidecar record persisted next to each artifact. Version is a
// source-declared stamp (e.g. "20250830" for the dated registry URL,
// "2025-08" for a monthly workbook), not a local invention.
type Entry struct {
	SourceKey   string    `json:"source_key"`
	Version     string    `json:"version"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Artifact    string    `json:"artifact"`
}

// Artifact is a handle to a locally persisted data-source snapshot.
type Artifact struct {
	Key         string
	Path        string
	Version     string
	RetrievedAt time.Time
	Stale       bool
}

// Bytes reads the artifact contents from disk.
func (a *Artifact) Bytes() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// FetchFunc produces a new artifact plus its source-declared version stamp.
type FetchFunc func() (data []byte, version string, err error)

// FreshFunc reports whether a locally recorded entry is still fresh; false
// triggers a re-fetch, never an error.
type FreshFunc func(e *Entry) bool

// Store maps a source key to an on-disk artifact with a sidecar version
// stamp. Refreshes are serialized per key; artifacts are replaced wholesale,
// never merged. Safe for concurrent use within a single process only: there
// is no cross-process locking.
type Store struct {
	dir           string
	staleFallback bool
	group         singleflight.Group
}

// Open prepares a store rooted at dir, creating it if needed. When
// staleFallback is set, a failed refresh falls back to the previous valid
// artifact (logged) instead of failing the request.
func Open(dir string, staleFallback bool) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache: directory not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: failed to create directory %s: %w", dir, err)
	}
	return &Store{dir: dir, staleFallback: staleFallback}, nil
}

// Dir returns the root cache directory.
func (s *Store) Dir() string { return s.dir }

// GetOrRefresh returns the artifact for key. If a local entry exists and
// fresh reports true, it is returned without any network access. Otherwise
// fetch runs under a per-key single-flight guard, so concurrent callers
// observing a stale entry share one download, and the result is persisted
// atomically (temp file + rename) before being returned. A failed fetch
// never disturbs the previous entry.
func (s *Store) GetOrRefresh(key string, fresh FreshFunc, fetch FetchFunc) (*Artifact, error) {
	if e, err := s.readEntry(key); err == nil && fresh(e) {
		return s.artifactFor(e, false), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Losers of the flight re-check: the winner may have refreshed
		// while we were queued.
		if e, err := s.readEntry(key); err == nil && fresh(e) {
			return s.artifactFor(e, false), nil
		}

		data, version, err := fetch()
		if err != nil {
			if s.staleFallback {
				if e, rerr := s.readEntry(key); rerr == nil {
					log.Printf("Cache: refresh of %q failed (%v); serving stale version %s from %s",
						key, err, e.Version, e.RetrievedAt.Format("2006-01-02"))
					return s.artifactFor(e, true), nil
				}
			}
			return nil, err
		}

		e, err := s.write(key, data, version)
		if err != nil {
			return nil, err
		}
		log.Printf("Cache: stored %q version %s (%d bytes)", key, version, len(data))
		return s.artifactFor(e, false), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Peek returns the current entry for key without triggering a refresh.
func (s *Store) Peek(key string) (*Entry, error) {
	return s.readEntry(key)
}

func (s *Store) keyDir(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) readEntry(key string) (*Entry, error) {
	raw, err := os.ReadFile(filepath.Join(s.keyDir(key), "entry.json"))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("cache: corrupt entry for %q: %w", key, err)
	}
	return &e, nil
}

func (s *Store) artifactFor(e *Entry, stale bool) *Artifact {
	return &Artifact{
		Key:         e.SourceKey,
		Path:        filepath.Join(s.keyDir(e.SourceKey), e.Artifact),
		Version:     e.Version,
		RetrievedAt: e.RetrievedAt,
		Stale:       stale,
	}
}

// write persists the artifact first, then the sidecar, each via a temp file
// renamed into place. An interrupted write leaves the previous entry intact
// because the sidecar still points at the old (or same-named, fully written)
// artifact.
func (s *Store) write(key string, data []byte, version string) (*Entry, error) {
	dir := s.keyDir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: failed to create %s: %w", dir, err)
	}

	if err := atomicWrite(filepath.Join(dir, "artifact"), data); err != nil {
		return nil, fmt.Errorf("cache: failed to write artifact for %q: %w", key, err)
	}

	e := &Entry{
		SourceKey:   key,
		Version:     version,
		RetrievedAt: time.Now().UTC(),
		Artifact:    "artifact",
	}
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cache: failed to marshal entry for %q: %w", key, err)
	}
	if err := atomicWrite(filepath.Join(dir, "entry.json"), raw); err != nil {
		return nil, fmt.Errorf("cache: failed to write entry for %q: %w", key, err)
	}
	return e, nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// SameDay is a staleness predicate for daily feeds: fresh while the entry
// was retrieved on the current calendar day.
func SameDay(now func() time.Time) FreshFunc {
	return func(e *Entry) bool {
		y1, m1, d1 := e.RetrievedAt.UTC().Date()
		y2, m2, d2 := now().UTC().Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
}

// SameMonth is a staleness predicate for monthly feeds: fresh while the
// recorded version stamp matches the current "YYYY-MM" month.
func SameMonth(now func() time.Time) FreshFunc {
	return func(e *Entry) bool {
		return e.Version == now().UTC().Format("2006-01")
	}
}
