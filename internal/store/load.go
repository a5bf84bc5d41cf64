package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// migration upgrades a raw document from one schema version to the next
type migration struct {
	from  int
	name  string
	apply func(raw map[string]json.RawMessage, logger *zap.Logger) error
}

// migrations run in order until the document reaches CurrentVersion
var migrations = []migration{
	{from: 0, name: "rename phashes to hashes", apply: renamePHashes},
	{from: 1, name: "drop list-valued hashes", apply: dropListHashes},
}

// Load reads the store at path. A missing file yields an empty store;
// an unreadable or malformed file yields ErrCorrupt.
func Load(path string, logger *zap.Logger) (*Store, error) {
	s := New(path, logger)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no store found, starting empty", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, path, err)
	}

	version := 0
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, fmt.Errorf("%w: version field: %v", ErrCorrupt, err)
		}
	}
	if version > CurrentVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported %d", ErrCorrupt, version, CurrentVersion)
	}

	for _, m := range migrations {
		if m.from < version {
			continue
		}
		s.logger.Info("migrating store",
			zap.String("path", path),
			zap.Int("from", m.from),
			zap.Int("to", m.from+1),
			zap.String("step", m.name))
		if err := m.apply(raw, s.logger); err != nil {
			return nil, fmt.Errorf("%w: migrate v%d: %v", ErrCorrupt, m.from, err)
		}
		version = m.from + 1
		s.modified = true
	}

	if h, ok := raw["hashes"]; ok && !isNull(h) {
		if err := json.Unmarshal(h, &s.hashes); err != nil {
			return nil, fmt.Errorf("%w: hashes: %v", ErrCorrupt, err)
		}
	}
	if f, ok := raw["fingerprints"]; ok && !isNull(f) {
		if err := json.Unmarshal(f, &s.fingerprints); err != nil {
			return nil, fmt.Errorf("%w: fingerprints: %v", ErrCorrupt, err)
		}
	}
	for fp, entry := range s.fingerprints {
		if entry == nil {
			delete(s.fingerprints, fp)
			continue
		}
		if entry.Count < 1 {
			entry.Count = 1
		}
	}

	for k, v := range raw {
		switch k {
		case "version", "hashes", "fingerprints":
		default:
			s.extra[k] = v
		}
	}

	s.logger.Info("store loaded",
		zap.String("path", path),
		zap.Int("version", version),
		zap.Int("hashes", len(s.hashes)),
		zap.Int("fingerprints", len(s.fingerprints)))

	return s, nil
}

// renamePHashes moves the pre-versioning "phashes" key to "hashes"
func renamePHashes(raw map[string]json.RawMessage, logger *zap.Logger) error {
	old, ok := raw["phashes"]
	if !ok {
		return nil
	}
	if _, exists := raw["hashes"]; !exists {
		raw["hashes"] = old
	}
	delete(raw, "phashes")
	return nil
}

// dropListHashes discards a hash index stored as a flat list.
// The list format carried no URLs, so the entries cannot be upgraded.
func dropListHashes(raw map[string]json.RawMessage, logger *zap.Logger) error {
	h, ok := raw["hashes"]
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(h)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var legacy []json.RawMessage
	if err := json.Unmarshal(trimmed, &legacy); err != nil {
		return fmt.Errorf("legacy hash list: %w", err)
	}

	logger.Warn("dropping legacy hash list: entries carry no URL and cannot be migrated",
		zap.Int("dropped", len(legacy)))

	raw["hashes"] = json.RawMessage(`{}`)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
