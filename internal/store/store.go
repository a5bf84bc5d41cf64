package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"go.uber.org/zap"
)

// CurrentVersion is the schema version written by Save
const CurrentVersion = 2

// FirstSeenLayout is the date format used for first_seen
const FirstSeenLayout = "2006-01-02"

// ErrCorrupt is returned when an existing store file cannot be read.
// Callers must abort rather than start over with an empty store.
var ErrCorrupt = errors.New("fingerprint store is corrupt")

// FingerprintEntry records the first sighting of a design and how often it recurred
type FingerprintEntry struct {
	FirstSeen    string `json:"first_seen"`
	ThumbnailURL string `json:"thumbnail_url"`
	Count        int    `json:"count"`
}

// Store holds the image-hash and fingerprint indices.
//
// Lookups may run concurrently; every mutation takes the write lock so
// concurrent inserts of the same fingerprint yield exactly one first-seen entry.
type Store struct {
	mu sync.RWMutex

	path         string
	hashes       map[model.ImageHash]string
	fingerprints map[model.FingerprintKey]*FingerprintEntry

	// extra keeps top-level keys this version does not understand
	extra map[string]json.RawMessage

	modified bool
	logger   *zap.Logger
}

// New returns an empty store that will be saved to path
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:         path,
		hashes:       make(map[model.ImageHash]string),
		fingerprints: make(map[model.FingerprintKey]*FingerprintEntry),
		extra:        make(map[string]json.RawMessage),
		logger:       logger,
	}
}

// Path returns the file the store persists to
func (s *Store) Path() string {
	return s.path
}

// LookupHash reports whether hash is known and the URL it was first seen at
func (s *Store) LookupHash(hash model.ImageHash) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.hashes[hash]
	return url, ok
}

// LookupFingerprint returns a copy of the entry for fp
func (s *Store) LookupFingerprint(fp model.FingerprintKey) (FingerprintEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.fingerprints[fp]
	if !ok {
		return FingerprintEntry{}, false
	}
	return *entry, true
}

// RecordOccurrence increments the count of a known fingerprint.
// It returns the updated entry, or false if fp is not in the store.
func (s *Store) RecordOccurrence(fp model.FingerprintKey) (FingerprintEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.fingerprints[fp]
	if !ok {
		return FingerprintEntry{}, false
	}
	entry.Count++
	s.modified = true
	return *entry, true
}

// InsertUnique records an accepted item in both indices.
//
// The fingerprint is re-checked under the lock: if another item inserted it
// first, only the occurrence count is incremented, the hash is left out and
// inserted is false.
func (s *Store) InsertUnique(hash model.ImageHash, fp model.FingerprintKey, thumbnailURL string, now time.Time) (entry FingerprintEntry, inserted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modified = true

	if existing, ok := s.fingerprints[fp]; ok {
		existing.Count++
		return *existing, false
	}

	if _, ok := s.hashes[hash]; !ok && hash != "" {
		s.hashes[hash] = thumbnailURL
	}

	created := &FingerprintEntry{
		FirstSeen:    now.Format(FirstSeenLayout),
		ThumbnailURL: thumbnailURL,
		Count:        1,
	}
	s.fingerprints[fp] = created
	return *created, true
}

// Len returns the sizes of the hash and fingerprint indices
func (s *Store) Len() (hashes int, fingerprints int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes), len(s.fingerprints)
}

// Modified reports whether the store changed since it was loaded
func (s *Store) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Fingerprints returns a copy of the fingerprint index
func (s *Store) Fingerprints() map[model.FingerprintKey]FingerprintEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.FingerprintKey]FingerprintEntry, len(s.fingerprints))
	for k, v := range s.fingerprints {
		out[k] = *v
	}
	return out
}

// Hashes returns a copy of the hash index
func (s *Store) Hashes() map[model.ImageHash]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ImageHash]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out
}

// Save writes the store to its path, replacing the previous file atomically
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := s.encode()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}

	s.mu.Lock()
	s.modified = false
	hashes, fps := len(s.hashes), len(s.fingerprints)
	s.mu.Unlock()

	s.logger.Info("store saved",
		zap.String("path", s.path),
		zap.Int("hashes", hashes),
		zap.Int("fingerprints", fps))
	return nil
}

// encode must be called with at least the read lock held
func (s *Store) encode() ([]byte, error) {
	raw := make(map[string]any, len(s.extra)+3)
	for k, v := range s.extra {
		raw[k] = v
	}
	raw["version"] = CurrentVersion
	raw["hashes"] = s.hashes
	raw["fingerprints"] = s.fingerprints

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return nil, fmt.Errorf("encode store: %w", err)
	}
	return buf.Bytes(), nil
}
