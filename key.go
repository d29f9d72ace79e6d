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
	"strings"
	"time"
)

// KEY binary layout constants (V1).
const (
	keyMagic         = "KEY "
	keyVersion       = "V1  "
	keyHeaderSize    = 64
	keyFileEntrySize = 12
	keyEntrySize     = 22
)

// KEYFile is one archive registration in a KEY's file table.
type KEYFile struct {
	// Filename is the archive path as stored, e.g. "data\\templates.bif".
	Filename string
	// FileSize is the archive size recorded at build time; zero when unknown.
	FileSize uint32
	// Drives is the legacy install-drive bitmask.
	Drives uint16
}

// KeyEntry cross-references one named resource to a BIF slot. The composite
// ResourceID packs the file-table index in the high bits and the dense
// within-BIF id in the low 20 bits.
type KeyEntry struct {
	// ResRef is the resource base name.
	ResRef ResRef
	// Type is the resource type.
	Type ResourceType
	// ResourceID is the composite (bif index, local id) reference.
	ResourceID uint32
}

// Identifier returns the (resref, type) identity of this entry.
func (e KeyEntry) Identifier() ResourceIdentifier {
	return ResourceIdentifier{ResRef: e.ResRef, Type: e.Type}
}

// BIFIndex returns the file-table index half of the composite id.
func (e KeyEntry) BIFIndex() int {
	return int(e.ResourceID >> 20)
}

// LocalIndex returns the dense within-BIF id half of the composite id.
func (e KeyEntry) LocalIndex() uint32 {
	return e.ResourceID & bifLocalIDMask
}

// KEY is the name index shared by one or more BIF archives: a file table
// naming the archives and a flat entry list mapping (resref, type) pairs to
// composite resource ids.
type KEY struct {
	byID map[uint32]int
	// BuildYear is years since 1900, as stored in the header.
	BuildYear uint32
	// BuildDay is the zero-based day of year, as stored in the header.
	BuildDay uint32
	files   []KEYFile
	entries []KeyEntry
}

// NewKEY creates an empty index with build date fields set to today.
func NewKEY() *KEY {
	now := time.Now()

	return &KEY{
		BuildYear: uint32(now.Year() - 1900), //nolint:gosec // year is always past 1900
		BuildDay:  uint32(now.YearDay() - 1), //nolint:gosec // day of year is 1..366
		byID:      map[uint32]int{},
	}
}

// Files returns a copy of the file table.
func (k *KEY) Files() []KEYFile {
	if k == nil {
		return nil
	}

	out := make([]KEYFile, len(k.files))
	copy(out, k.files)
	return out
}

// Entries returns a copy of the full entry list.
func (k *KEY) Entries() []KeyEntry {
	if k == nil {
		return nil
	}

	out := make([]KeyEntry, len(k.entries))
	copy(out, k.entries)
	return out
}

// EntriesForBIF returns the entries referencing the given file-table index.
func (k *KEY) EntriesForBIF(bifIndex int) []KeyEntry {
	if k == nil {
		return nil
	}

	var out []KeyEntry
	for _, entry := range k.entries {
		if entry.BIFIndex() == bifIndex {
			out = append(out, entry)
		}
	}

	return out
}

// EntryByID returns the entry with the given composite resource id.
func (k *KEY) EntryByID(resourceID uint32) (KeyEntry, bool) {
	if k == nil {
		return KeyEntry{}, false
	}

	i, ok := k.byID[resourceID]
	if !ok {
		return KeyEntry{}, false
	}

	return k.entries[i], true
}

// AddFile registers an archive filename and returns its file-table index.
// An already registered filename (case-insensitive) keeps its index.
func (k *KEY) AddFile(filename string, fileSize uint32) int {
	for i, f := range k.files {
		if strings.EqualFold(f.Filename, filename) {
			return i
		}
	}

	k.files = append(k.files, KEYFile{Filename: filename, FileSize: fileSize})
	return len(k.files) - 1
}

// AddEntry appends one cross-reference entry and rebuilds the lookup index.
func (k *KEY) AddEntry(entry KeyEntry) {
	k.entries = append(k.entries, entry)
	k.rebuildIndex()
}

// rebuildIndex recomputes the composite-id lookup from the entry list.
func (k *KEY) rebuildIndex() {
	k.byID = make(map[uint32]int, len(k.entries))
	for i, entry := range k.entries {
		k.byID[entry.ResourceID] = i
	}
}

// ReadKEY parses a KEY index file.
func ReadKEY(ra io.ReaderAt, size int64) (*KEY, error) {
	var header [keyHeaderSize]byte
	if err := readExact(ra, header[:], 0, "KEY header"); err != nil {
		if size < keyHeaderSize {
			return nil, fmt.Errorf("%w: file too short for KEY header", ErrInvalidHeader)
		}

		return nil, err
	}

	if string(header[0:4]) != keyMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrUnsupportedFormat, header[0:4])
	}
	if string(header[4:8]) != keyVersion {
		return nil, fmt.Errorf("%w: KEY version %q", ErrUnsupportedFormat, header[4:8])
	}

	bifCount := binary.LittleEndian.Uint32(header[8:12])
	keyCount := binary.LittleEndian.Uint32(header[12:16])
	offFileTable := binary.LittleEndian.Uint32(header[16:20])
	offKeyTable := binary.LittleEndian.Uint32(header[20:24])

	key := &KEY{
		BuildYear: binary.LittleEndian.Uint32(header[24:28]),
		BuildDay:  binary.LittleEndian.Uint32(header[28:32]),
	}

	if err := checkTableBounds(offFileTable, bifCount, keyFileEntrySize, size, "KEY file"); err != nil {
		return nil, err
	}
	if err := checkTableBounds(offKeyTable, keyCount, keyEntrySize, size, "KEY entry"); err != nil {
		return nil, err
	}

	key.files = make([]KEYFile, 0, bifCount)
	for i := uint32(0); i < bifCount; i++ {
		var entry [keyFileEntrySize]byte
		if err := readExact(ra, entry[:], int64(offFileTable)+int64(i)*keyFileEntrySize, "KEY file entry"); err != nil {
			return nil, err
		}

		nameOffset := binary.LittleEndian.Uint32(entry[4:8])
		nameLen := binary.LittleEndian.Uint16(entry[8:10])
		if uint64(nameOffset)+uint64(nameLen) > uint64(size) {
			return nil, fmt.Errorf("%w: KEY filename exceeds file size", ErrCorruptIndex)
		}

		name := make([]byte, nameLen)
		if err := readExact(ra, name, int64(nameOffset), "KEY filename"); err != nil {
			return nil, err
		}

		key.files = append(key.files, KEYFile{
			Filename: string(bytes.TrimRight(name, "\x00")),
			FileSize: binary.LittleEndian.Uint32(entry[0:4]),
			Drives:   binary.LittleEndian.Uint16(entry[10:12]),
		})
	}

	key.entries = make([]KeyEntry, 0, keyCount)
	for i := uint32(0); i < keyCount; i++ {
		var entry [keyEntrySize]byte
		if err := readExact(ra, entry[:], int64(offKeyTable)+int64(i)*keyEntrySize, "KEY table entry"); err != nil {
			return nil, err
		}

		key.entries = append(key.entries, KeyEntry{
			ResRef:     resrefFromField(entry[0:16]),
			Type:       TypeFromID(uint32(binary.LittleEndian.Uint16(entry[16:18]))),
			ResourceID: binary.LittleEndian.Uint32(entry[18:22]),
		})
	}

	key.rebuildIndex()
	return key, nil
}

// ReadKEYBytes parses a KEY index from a byte slice.
func ReadKEYBytes(data []byte) (*KEY, error) {
	return ReadKEY(bytes.NewReader(data), int64(len(data)))
}

// ReadKEYFile parses a KEY index from disk.
func ReadKEYFile(path string) (*KEY, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open KEY: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat KEY: %w", err)
	}

	return ReadKEY(f, fi.Size())
}

// WriteKEY serializes the index: header, file table, packed filename block,
// then the entry table. All offsets are recomputed from scratch.
func WriteKEY(w io.Writer, key *KEY) error {
	if key == nil {
		return ErrNilCapsule
	}

	bifCount := uint32(len(key.files))   //nolint:gosec // file tables are tiny
	keyCount := uint32(len(key.entries)) //nolint:gosec // entry counts are far below uint32 range
	offFileTable := uint32(keyHeaderSize)

	nameBlockStart := uint64(offFileTable) + uint64(bifCount)*keyFileEntrySize
	nameBlockSize := uint64(0)
	for _, f := range key.files {
		if len(f.Filename) > math.MaxUint16 {
			return fmt.Errorf("%w: filename %q too long", ErrCorruptIndex, f.Filename)
		}

		nameBlockSize += uint64(len(f.Filename))
	}

	offKeyTable := nameBlockStart + nameBlockSize
	if offKeyTable+uint64(keyCount)*keyEntrySize > math.MaxUint32 {
		return fmt.Errorf("%w: index exceeds 4 GiB", ErrCorruptIndex)
	}

	var header [keyHeaderSize]byte
	copy(header[0:4], keyMagic)
	copy(header[4:8], keyVersion)
	binary.LittleEndian.PutUint32(header[8:12], bifCount)
	binary.LittleEndian.PutUint32(header[12:16], keyCount)
	binary.LittleEndian.PutUint32(header[16:20], offFileTable)
	binary.LittleEndian.PutUint32(header[20:24], uint32(offKeyTable)) //nolint:gosec // bounded by 4 GiB check above
	binary.LittleEndian.PutUint32(header[24:28], key.BuildYear)
	binary.LittleEndian.PutUint32(header[28:32], key.BuildDay)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write KEY header: %w", err)
	}

	nameOffset := nameBlockStart
	for _, f := range key.files {
		var entry [keyFileEntrySize]byte
		binary.LittleEndian.PutUint32(entry[0:4], f.FileSize)
		binary.LittleEndian.PutUint32(entry[4:8], uint32(nameOffset))       //nolint:gosec // bounded by 4 GiB check above
		binary.LittleEndian.PutUint16(entry[8:10], uint16(len(f.Filename))) //nolint:gosec // checked against MaxUint16 above
		binary.LittleEndian.PutUint16(entry[10:12], f.Drives)

		if _, err := w.Write(entry[:]); err != nil {
			return fmt.Errorf("write KEY file entry: %w", err)
		}

		nameOffset += uint64(len(f.Filename))
	}

	for _, f := range key.files {
		if _, err := io.WriteString(w, f.Filename); err != nil {
			return fmt.Errorf("write KEY filename: %w", err)
		}
	}

	for _, entry := range key.entries {
		var raw [keyEntrySize]byte
		putResRefField(raw[0:16], entry.ResRef)
		binary.LittleEndian.PutUint16(raw[16:18], uint16(entry.Type.ID)) //nolint:gosec // KEY type ids fit uint16
		binary.LittleEndian.PutUint32(raw[18:22], entry.ResourceID)

		if _, err := w.Write(raw[:]); err != nil {
			return fmt.Errorf("write KEY table entry: %w", err)
		}
	}

	return nil
}

// WriteKEYFile serializes the index to disk, truncating any existing file.
func WriteKEYFile(path string, key *KEY) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create KEY file: %w", err)
	}

	if err := WriteKEY(f, key); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync KEY file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close KEY file: %w", err)
	}

	return nil
}

// MarshalBinary serializes the index to a byte slice.
func (k *KEY) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteKEY(&buf, k); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
