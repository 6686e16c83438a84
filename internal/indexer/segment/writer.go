// Package segment persists snapshots to an index directory. Each commit
// writes one self-contained snap_<generation>.spdx file, then swaps the
// CURRENT manifest to name it. Every file is written to a .tmp sibling and
// renamed into place, so a crash leaves either the old or the new state.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
)

// MagicBytes identifies a valid .spdx snapshot file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
)

// SegmentHeader is the 64-byte header written at the start of every
// snapshot file. Checksum covers the (compressed) payload that follows.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	Codec       Codec
	Checksum    uint32
	Generation  uint64
	DocCount    uint64
	CreatedAt   int64
	PayloadSize uint64
	RawSize     uint64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.Codec))
	binary.LittleEndian.PutUint32(b[12:16], h.Checksum)
	binary.LittleEndian.PutUint64(b[16:24], h.Generation)
	binary.LittleEndian.PutUint64(b[24:32], h.DocCount)
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[40:48], h.PayloadSize)
	binary.LittleEndian.PutUint64(b[48:56], h.RawSize)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		Codec:       Codec(binary.LittleEndian.Uint32(b[8:12])),
		Checksum:    binary.LittleEndian.Uint32(b[12:16]),
		Generation:  binary.LittleEndian.Uint64(b[16:24]),
		DocCount:    binary.LittleEndian.Uint64(b[24:32]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(b[32:40])),
		PayloadSize: binary.LittleEndian.Uint64(b[40:48]),
		RawSize:     binary.LittleEndian.Uint64(b[48:56]),
	}
}

// payload is the serialised body of a snapshot file.
type payload struct {
	CommittedAt time.Time           `json:"committed_at"`
	Live        []byte              `json:"live"`
	Fields      []fieldPayload      `json:"fields"`
	Stored      []document.Document `json:"stored"`
}

type fieldPayload struct {
	Name     string               `json:"name"`
	Terms    []index.TermEntry    `json:"terms,omitempty"`
	Lengths  map[int64]int        `json:"lengths,omitempty"`
	Numerics []index.NumericEntry `json:"numerics,omitempty"`
}

// SnapshotName is the file name generation gen is written under.
func SnapshotName(gen uint64) string {
	return fmt.Sprintf("snap_%020d.spdx", gen)
}

// Writer serialises snapshots into new .spdx files.
type Writer struct {
	dataDir string
	codec   Codec
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dataDir string, codec Codec) *Writer {
	return &Writer{dataDir: dataDir, codec: codec}
}

// Write atomically creates the snapshot file of snap and returns its name.
func (w *Writer) Write(snap *snapshot.Snapshot) (string, error) {
	live, err := snap.Live.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshaling live set: %w", err)
	}
	p := payload{CommittedAt: snap.CommittedAt, Live: live}
	for _, m := range snap.Schema.Fields() {
		fp := fieldPayload{Name: m.Name}
		if t := snap.Term(m.Name); t != nil {
			fp.Terms = t.Entries()
			fp.Lengths = t.Lengths()
		}
		if n := snap.Numeric(m.Name); n != nil {
			fp.Numerics = n.Entries()
		}
		p.Fields = append(p.Fields, fp)
	}
	for _, id := range snap.IDs() {
		if doc, ok := snap.Stored[id]; ok {
			p.Stored = append(p.Stored, doc)
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot payload: %w", err)
	}
	body, codec, err := compress(raw, w.codec)
	if err != nil {
		return "", fmt.Errorf("compressing snapshot payload: %w", err)
	}
	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		Codec:       codec,
		Checksum:    crc32.ChecksumIEEE(body),
		Generation:  snap.Generation,
		DocCount:    snap.DocCount(),
		CreatedAt:   time.Now().Unix(),
		PayloadSize: uint64(len(body)),
		RawSize:     uint64(len(raw)),
	}
	name := SnapshotName(snap.Generation)
	if err := writeFileAtomic(filepath.Join(w.dataDir, name), header.encode(), body); err != nil {
		return "", err
	}
	return name, nil
}

// writeFileAtomic writes parts to path+".tmp", syncs it and renames it over
// path.
func writeFileAtomic(path string, parts ...[]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	for _, part := range parts {
		if _, err := f.Write(part); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
