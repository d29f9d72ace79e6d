// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ulikunitz/xz/lzma"
)

// BIF binary layout constants (V1).
const (
	bifHeaderSize   = 20
	bifVarEntrySize = 16
	bifVersion      = "V1  "
)

// BIFFormat selects the plain or per-resource LZMA compressed layout.
type BIFFormat string

// BIF header magics.
const (
	// BIFFormatPlain is the uncompressed BIFF layout.
	BIFFormatPlain BIFFormat = "BIFF"
	// BIFFormatLZMA is the BZF layout with each payload LZMA-compressed.
	BIFFormatLZMA BIFFormat = "BZF "
)

// bifLocalIDMask extracts the within-BIF half of a composite resource id.
const bifLocalIDMask = 0xFFFFF

// BIFResource is one entry inside a loaded BIF archive. Names are not stored
// in the BIF itself; they come from a companion KEY index.
type BIFResource struct {
	// ResRef is the base name, filled from KEY synchronization. Freshly read
	// archives carry empty resrefs until a KEY is applied.
	ResRef ResRef
	// Type is the resource type.
	Type ResourceType
	// Data is the decompressed payload.
	Data []byte
	// ID is the dense numeric id unique within this BIF.
	ID uint32
	// Offset is the payload offset as read from disk; informational only.
	Offset uint32
	// PackedSize is the on-disk compressed size; zero for plain BIF.
	PackedSize uint32
}

// BIF is a fully parsed in-memory BIF or BZF archive, indexed by dense
// numeric resource id rather than by name.
type BIF struct {
	byID map[uint32]int
	// Format selects plain or compressed layout on serialization.
	Format    BIFFormat
	resources []BIFResource
}

// NewBIF creates an empty archive with the given layout.
func NewBIF(format BIFFormat) *BIF {
	return &BIF{Format: format, byID: map[uint32]int{}}
}

// Len returns the number of resources.
func (b *BIF) Len() int {
	if b == nil {
		return 0
	}

	return len(b.resources)
}

// Resources returns a copy of the resource list in id order as stored.
func (b *BIF) Resources() []BIFResource {
	if b == nil {
		return nil
	}

	out := make([]BIFResource, len(b.resources))
	copy(out, b.resources)
	return out
}

// ResourceByID returns the resource with the given dense id.
func (b *BIF) ResourceByID(id uint32) (BIFResource, bool) {
	if b == nil {
		return BIFResource{}, false
	}

	i, ok := b.byID[id]
	if !ok {
		return BIFResource{}, false
	}

	return b.resources[i], true
}

// Add appends a resource under the next free dense id and returns that id.
func (b *BIF) Add(name string, restype ResourceType, data []byte) (uint32, error) {
	resref, err := NewResRef(name)
	if err != nil {
		return 0, err
	}

	id := uint32(0)
	for _, res := range b.resources {
		if res.ID >= id {
			id = res.ID + 1
		}
	}

	b.resources = append(b.resources, BIFResource{ResRef: resref, Type: restype, ID: id, Data: data})
	b.rebuildIndex()
	return id, nil
}

// rebuildIndex recomputes the id lookup from the canonical resource list.
func (b *BIF) rebuildIndex() {
	b.byID = make(map[uint32]int, len(b.resources))
	for i, res := range b.resources {
		b.byID[res.ID] = i
	}
}

// GenerateKey builds KEY entries for every resource currently in this BIF.
// With a nil existing key a fresh KEY is created; otherwise the existing
// key's entries for this archive are replaced in place. The archive is
// registered in the key's file table under filename.
func (b *BIF) GenerateKey(filename string, existing *KEY) *KEY {
	key := existing
	if key == nil {
		key = NewKEY()
	}

	bifIndex := key.AddFile(filename, 0)
	kept := key.entries[:0]
	for _, entry := range key.entries {
		if entry.BIFIndex() != bifIndex {
			kept = append(kept, entry)
		}
	}
	key.entries = kept

	for _, res := range b.resources {
		key.entries = append(key.entries, KeyEntry{
			ResRef:     res.ResRef,
			Type:       res.Type,
			ResourceID: compositeResourceID(bifIndex, res.ID),
		})
	}

	key.rebuildIndex()
	return key
}

// ValidateWithKey runs a bidirectional diff between this BIF and the KEY
// entries referencing it. Every discrepancy is collected as a readable
// problem string; nothing is raised, since a large install may carry many
// tolerable mismatches.
func (b *BIF) ValidateWithKey(key *KEY, bifIndex int) []string {
	var problems []string

	seen := make(map[uint32]struct{}, len(b.resources))
	for _, entry := range key.EntriesForBIF(bifIndex) {
		localID := entry.LocalIndex()
		seen[localID] = struct{}{}

		res, ok := b.ResourceByID(localID)
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"KEY entry %s (id %d) not found in BIF", entry.Identifier(), localID))
			continue
		}

		if res.Type.ID != entry.Type.ID {
			problems = append(problems, fmt.Sprintf(
				"KEY entry %s (id %d) type mismatch: KEY has %s, BIF has %s",
				entry.Identifier(), localID, entry.Type, res.Type))
		}
	}

	for _, res := range b.resources {
		if _, ok := seen[res.ID]; !ok {
			problems = append(problems, fmt.Sprintf(
				"BIF resource id %d (%s) missing from KEY", res.ID, res.Identifier()))
		}
	}

	return problems
}

// SynchronizeWithKey overwrites each resource's resref from the matching KEY
// entry, silently skipping ids absent from the KEY.
func (b *BIF) SynchronizeWithKey(key *KEY, bifIndex int) {
	for i := range b.resources {
		entry, ok := key.EntryByID(compositeResourceID(bifIndex, b.resources[i].ID))
		if !ok {
			continue
		}

		b.resources[i].ResRef = entry.ResRef
	}
}

// ApplyKey synchronizes names like SynchronizeWithKey, additionally collecting
// type mismatches and KEY entries with no matching BIF resource, then rebuilds
// the lookup index. The returned problems are diagnostics, not failures.
func (b *BIF) ApplyKey(key *KEY, bifIndex int) []string {
	var problems []string

	for _, entry := range key.EntriesForBIF(bifIndex) {
		localID := entry.LocalIndex()
		i, ok := b.byID[localID]
		if !ok {
			problems = append(problems, fmt.Sprintf(
				"KEY entry %s (id %d) not found in BIF", entry.Identifier(), localID))
			continue
		}

		if b.resources[i].Type.ID != entry.Type.ID {
			problems = append(problems, fmt.Sprintf(
				"KEY entry %s (id %d) type mismatch: KEY has %s, BIF has %s",
				entry.Identifier(), localID, entry.Type, b.resources[i].Type))
		}

		b.resources[i].ResRef = entry.ResRef
	}

	b.rebuildIndex()
	return problems
}

// Identifier returns the (resref, type) identity of this resource.
func (r BIFResource) Identifier() ResourceIdentifier {
	return ResourceIdentifier{ResRef: r.ResRef, Type: r.Type}
}

// compositeResourceID packs a BIF index and a dense local id into the
// composite id form stored in KEY entries.
func compositeResourceID(bifIndex int, localID uint32) uint32 {
	return uint32(bifIndex)<<20 | (localID & bifLocalIDMask) //nolint:gosec // bif counts are tiny
}

// ReadBIF parses a full BIF or BZF archive, decompressing BZF payloads.
func ReadBIF(ra io.ReaderAt, size int64) (*BIF, error) {
	var header [bifHeaderSize]byte
	if err := readExact(ra, header[:], 0, "BIF header"); err != nil {
		if size < bifHeaderSize {
			return nil, fmt.Errorf("%w: file too short for BIF header", ErrInvalidHeader)
		}

		return nil, err
	}

	format := BIFFormat(header[0:4])
	if format != BIFFormatPlain && format != BIFFormatLZMA {
		return nil, fmt.Errorf("%w: magic %q", ErrUnsupportedFormat, header[0:4])
	}
	if string(header[4:8]) != bifVersion {
		return nil, fmt.Errorf("%w: BIF version %q", ErrUnsupportedFormat, header[4:8])
	}

	varCount := binary.LittleEndian.Uint32(header[8:12])
	offVarTable := binary.LittleEndian.Uint32(header[16:20])
	if err := checkTableBounds(offVarTable, varCount, bifVarEntrySize, size, "BIF variable"); err != nil {
		return nil, err
	}

	bif := NewBIF(format)
	bif.resources = make([]BIFResource, 0, varCount)
	logicalSizes := make([]uint32, 0, varCount)
	for i := uint32(0); i < varCount; i++ {
		var entry [bifVarEntrySize]byte
		if err := readExact(ra, entry[:], int64(offVarTable)+int64(i)*bifVarEntrySize, "BIF variable entry"); err != nil {
			return nil, err
		}

		bif.resources = append(bif.resources, BIFResource{
			ID:     binary.LittleEndian.Uint32(entry[0:4]) & bifLocalIDMask,
			Offset: binary.LittleEndian.Uint32(entry[4:8]),
			Type:   TypeFromID(binary.LittleEndian.Uint32(entry[12:16])),
		})
		logicalSizes = append(logicalSizes, binary.LittleEndian.Uint32(entry[8:12]))
	}

	if format == BIFFormatPlain {
		if err := readBIFPlainPayloads(ra, size, bif.resources, logicalSizes); err != nil {
			return nil, err
		}
	} else {
		if err := readBZFPayloads(ra, size, bif.resources, logicalSizes); err != nil {
			return nil, err
		}
	}

	bif.rebuildIndex()
	return bif, nil
}

// readBIFPlainPayloads reads uncompressed payloads at their stored offsets.
func readBIFPlainPayloads(ra io.ReaderAt, size int64, resources []BIFResource, logicalSizes []uint32) error {
	for i := range resources {
		if err := checkPayloadBounds(resources[i].Offset, logicalSizes[i], size, resources[i].Identifier()); err != nil {
			return err
		}

		data := make([]byte, logicalSizes[i])
		if err := readExact(ra, data, int64(resources[i].Offset), "BIF payload"); err != nil {
			return err
		}

		resources[i].Data = data
	}

	return nil
}

// readBZFPayloads derives packed sizes from payload offset gaps and
// LZMA-decompresses each region. The table does not store packed sizes: each
// payload runs to the next payload's offset, the last to end of file.
func readBZFPayloads(ra io.ReaderAt, size int64, resources []BIFResource, logicalSizes []uint32) error {
	order := make([]int, len(resources))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return resources[order[a]].Offset < resources[order[b]].Offset
	})

	for pos, i := range order {
		end := size
		if pos+1 < len(order) {
			end = int64(resources[order[pos+1]].Offset)
		}

		logicalSize := logicalSizes[i]
		start := int64(resources[i].Offset)
		if start > end || end > size {
			return fmt.Errorf("%w: packed payload of id %d out of bounds", ErrCorruptIndex, resources[i].ID)
		}

		packed := make([]byte, end-start)
		if err := readExact(ra, packed, start, "BZF payload"); err != nil {
			return err
		}

		lr, err := lzma.NewReader(bytes.NewReader(packed))
		if err != nil {
			return fmt.Errorf("open LZMA stream for id %d: %w", resources[i].ID, err)
		}

		data := make([]byte, logicalSize)
		if _, err := io.ReadFull(lr, data); err != nil {
			return fmt.Errorf("decompress id %d: %w", resources[i].ID, err)
		}

		resources[i].Data = data
		resources[i].PackedSize = uint32(len(packed)) //nolint:gosec // bounded by file size
	}

	return nil
}

// ReadBIFBytes parses a BIF or BZF archive from a byte slice.
func ReadBIFBytes(data []byte) (*BIF, error) {
	return ReadBIF(bytes.NewReader(data), int64(len(data)))
}

// ReadBIFFile parses a BIF or BZF archive from disk.
func ReadBIFFile(path string) (*BIF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open BIF: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat BIF: %w", err)
	}

	return ReadBIF(f, fi.Size())
}

// WriteBIF serializes the archive, compressing payloads for the BZF layout.
// Offsets are recomputed from scratch; payloads follow the variable table in
// list order.
func WriteBIF(w io.Writer, bif *BIF) error {
	if bif == nil {
		return ErrNilCapsule
	}

	format := bif.Format
	if format == "" {
		format = BIFFormatPlain
	}
	if format != BIFFormatPlain && format != BIFFormatLZMA {
		return fmt.Errorf("%w: BIF format %q", ErrUnsupportedFormat, format)
	}

	payloads := make([][]byte, len(bif.resources))
	for i, res := range bif.resources {
		if format == BIFFormatPlain {
			payloads[i] = res.Data
			continue
		}

		packed, err := lzmaCompress(res.Data)
		if err != nil {
			return fmt.Errorf("compress id %d: %w", res.ID, err)
		}

		payloads[i] = packed
	}

	varCount := uint32(len(bif.resources)) //nolint:gosec // entry counts are far below uint32 range
	payloadStart := uint64(bifHeaderSize) + uint64(varCount)*bifVarEntrySize

	total := payloadStart
	for _, p := range payloads {
		total += uint64(len(p))
	}
	if total > math.MaxUint32 {
		return fmt.Errorf("%w: archive exceeds 4 GiB", ErrCorruptIndex)
	}

	var header [bifHeaderSize]byte
	copy(header[0:4], string(format))
	copy(header[4:8], bifVersion)
	binary.LittleEndian.PutUint32(header[8:12], varCount)
	binary.LittleEndian.PutUint32(header[12:16], 0)
	binary.LittleEndian.PutUint32(header[16:20], bifHeaderSize)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write BIF header: %w", err)
	}

	offset := uint32(payloadStart) //nolint:gosec // bounded by 4 GiB check above
	for i, res := range bif.resources {
		var entry [bifVarEntrySize]byte
		binary.LittleEndian.PutUint32(entry[0:4], res.ID&bifLocalIDMask)
		binary.LittleEndian.PutUint32(entry[4:8], offset)
		binary.LittleEndian.PutUint32(entry[8:12], uint32(len(res.Data))) //nolint:gosec // bounded by 4 GiB check above
		binary.LittleEndian.PutUint32(entry[12:16], res.Type.ID)

		if _, err := w.Write(entry[:]); err != nil {
			return fmt.Errorf("write BIF variable entry: %w", err)
		}

		offset += uint32(len(payloads[i])) //nolint:gosec // bounded by 4 GiB check above
	}

	for i, payload := range payloads {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write BIF payload id %d: %w", bif.resources[i].ID, err)
		}
	}

	return nil
}

// lzmaCompress encodes one payload as a standalone LZMA stream.
func lzmaCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	lw, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	if _, err := lw.Write(data); err != nil {
		return nil, err
	}

	if err := lw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WriteBIFFile serializes the archive to disk, truncating any existing file.
func WriteBIFFile(path string, bif *BIF) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create BIF file: %w", err)
	}

	if err := WriteBIF(f, bif); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync BIF file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close BIF file: %w", err)
	}

	return nil
}

// MarshalBinary serializes the archive to a byte slice.
func (b *BIF) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBIF(&buf, b); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
