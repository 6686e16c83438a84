package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

const (
	SchemaFile   = "schema.json"
	ManifestFile = "CURRENT"
	snapshotExt  = ".spdx"
)

// IndexMeta is the content of schema.json.
type IndexMeta struct {
	Analyzer string         `json:"analyzer"`
	Schema   *schema.Schema `json:"fields"`
}

// Manifest is the content of CURRENT and names the live snapshot file.
type Manifest struct {
	Generation uint64 `json:"generation"`
	Snapshot   string `json:"snapshot"`
}

// Store owns the files of one index directory.
type Store struct {
	dir    string
	writer *Writer
	logger *slog.Logger
}

// OpenStore creates dir if needed.
func OpenStore(dir string, codec Codec) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	return &Store{
		dir:    dir,
		writer: NewWriter(dir, codec),
		logger: slog.Default().With("component", "segment-store", "dir", dir),
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// ReadMeta returns the stored schema.json, or nil when the directory holds
// no index yet.
func (s *Store) ReadMeta() (*IndexMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, SchemaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", SchemaFile, err)
	}
	var meta IndexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrCorrupt, SchemaFile, err)
	}
	if meta.Schema == nil {
		return nil, fmt.Errorf("%w: %s has no fields", ErrCorrupt, SchemaFile)
	}
	return &meta, nil
}

func (s *Store) WriteMeta(meta IndexMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", SchemaFile, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, SchemaFile), data)
}

// Load reads the snapshot CURRENT names. A directory without a manifest
// yields the empty snapshot of sc.
func (s *Store) Load(sc *schema.Schema) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no manifest found, starting empty")
		return snapshot.Empty(sc), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ManifestFile, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrCorrupt, ManifestFile, err)
	}
	if m.Snapshot == "" || filepath.Base(m.Snapshot) != m.Snapshot {
		return nil, fmt.Errorf("%w: %s names invalid snapshot %q", ErrCorrupt, ManifestFile, m.Snapshot)
	}
	snap, err := ReadSnapshot(filepath.Join(s.dir, m.Snapshot), sc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %s named by %s is missing", ErrCorrupt, m.Snapshot, ManifestFile)
		}
		return nil, err
	}
	if snap.Generation != m.Generation {
		return nil, fmt.Errorf("%w: snapshot generation %d, manifest says %d", ErrCorrupt, snap.Generation, m.Generation)
	}
	s.logger.Info("loaded snapshot",
		"snapshot", m.Snapshot,
		"generation", snap.Generation,
		"docs", snap.DocCount(),
	)
	return snap, nil
}

// Commit writes snap, points CURRENT at it and removes superseded snapshot
// files. Once Commit returns nil the new generation is durable.
func (s *Store) Commit(snap *snapshot.Snapshot) error {
	name, err := s.writer.Write(snap)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	data, err := json.Marshal(Manifest{Generation: snap.Generation, Snapshot: name})
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, ManifestFile), data); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return fmt.Errorf("swapping manifest: %w", err)
	}
	s.removeStale(name)
	return nil
}

func (s *Store) removeStale(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("listing index directory for cleanup", "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == keep {
			continue
		}
		if strings.HasSuffix(name, snapshotExt) || strings.HasSuffix(name, ".tmp") {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				s.logger.Warn("removing stale index file", "file", name, "error", err)
				continue
			}
			s.logger.Debug("removed stale index file", "file", name)
		}
	}
}
