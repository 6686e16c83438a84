package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// ErrCorrupt is returned for snapshot or manifest files that cannot be
// decoded.
var ErrCorrupt = errors.New("corrupt index file")

// ReadSnapshot loads the snapshot file at path. Fields of the file that s
// does not declare cause an ErrCorrupt error.
func ReadSnapshot(path string, s *schema.Schema) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %s is too short", ErrCorrupt, path)
	}
	header := decodeHeader(data[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, header.Version)
	}
	body := data[HeaderSize:]
	if uint64(len(body)) != header.PayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(body), header.PayloadSize)
	}
	if sum := crc32.ChecksumIEEE(body); sum != header.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch (%08x != %08x)", ErrCorrupt, sum, header.Checksum)
	}
	raw, err := decompress(body, header.Codec, int(header.RawSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: parsing payload: %v", ErrCorrupt, err)
	}

	live := roaring64.New()
	if err := live.UnmarshalBinary(p.Live); err != nil {
		return nil, fmt.Errorf("%w: parsing live set: %v", ErrCorrupt, err)
	}
	if live.GetCardinality() != header.DocCount {
		return nil, fmt.Errorf("%w: live set holds %d documents, header says %d",
			ErrCorrupt, live.GetCardinality(), header.DocCount)
	}
	snap := snapshot.Empty(s)
	snap.Generation = header.Generation
	snap.CommittedAt = p.CommittedAt
	snap.Live = live
	for _, fp := range p.Fields {
		m, ok := s.Field(fp.Name)
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not in the schema", ErrCorrupt, fp.Name)
		}
		if m.Type == schema.Integer {
			if len(fp.Numerics) > 0 {
				snap.Numerics[fp.Name] = index.NewNumericIndex(fp.Numerics)
			}
			continue
		}
		if len(fp.Lengths) > 0 {
			snap.Terms[fp.Name] = index.NewTermIndex(fp.Terms, fp.Lengths)
		}
	}
	snap.Stored = make(map[int64]document.Document, len(p.Stored))
	for _, doc := range p.Stored {
		snap.Stored[doc.ID] = doc
	}
	return snap, nil
}
