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
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ERF binary layout constants (V1.0).
const (
	erfHeaderSize   = 160
	erfKeyEntrySize = 24
	erfResEntrySize = 8
	erfVersion      = "V1.0"
)

// ERFType is the 4-byte header tag distinguishing ERF-family variants.
type ERFType string

// ERF-family header tags.
const (
	// ERFTypeERF marks a generic encapsulated resource file.
	ERFTypeERF ERFType = "ERF "
	// ERFTypeMOD marks a game module.
	ERFTypeMOD ERFType = "MOD "
	// ERFTypeSAV marks a save-game capsule.
	ERFTypeSAV ERFType = "SAV "
)

// erfTypeFromMagic maps a header magic to an ERF-family tag.
func erfTypeFromMagic(magic string) (ERFType, bool) {
	switch ERFType(magic) {
	case ERFTypeERF, ERFTypeMOD, ERFTypeSAV:
		return ERFType(magic), true
	default:
		return "", false
	}
}

// LocalizedString is one language-tagged description string from an ERF header.
type LocalizedString struct {
	// Text is the decoded string content.
	Text string
	// LanguageID is the numeric language/gender id.
	LanguageID uint32
}

// ERFResource is one fully loaded resource inside an in-memory ERF.
type ERFResource struct {
	// ResRef is the resource base name.
	ResRef ResRef
	// Type is the resource type.
	Type ResourceType
	// Data is the raw payload.
	Data []byte
}

// Identifier returns the (resref, type) identity of this resource.
func (r ERFResource) Identifier() ResourceIdentifier {
	return ResourceIdentifier{ResRef: r.ResRef, Type: r.Type}
}

// ERF is a fully parsed in-memory ERF/MOD/SAV container. The resource list is
// canonical and ordered; the lookup index is derived from it and rebuilt
// wholesale after every mutation.
type ERF struct {
	index map[string]int
	// FileType selects the header tag written on serialization.
	FileType ERFType
	// Description holds the optional localized description strings.
	Description []LocalizedString
	resources   []ERFResource
	// DescriptionStrRef is the talk-table reference for the description.
	DescriptionStrRef uint32
	// BuildYear is years since 1900, as stored in the header.
	BuildYear uint32
	// BuildDay is the zero-based day of year, as stored in the header.
	BuildDay uint32
}

// NewERF creates an empty container with build date fields set to today.
func NewERF(fileType ERFType) *ERF {
	now := time.Now()

	return &ERF{
		FileType:          fileType,
		BuildYear:         uint32(now.Year() - 1900), //nolint:gosec // year is always past 1900
		BuildDay:          uint32(now.YearDay() - 1), //nolint:gosec // day of year is 1..366
		DescriptionStrRef: 0xFFFFFFFF,
		index:             map[string]int{},
	}
}

// Len returns the number of resources.
func (e *ERF) Len() int {
	if e == nil {
		return 0
	}

	return len(e.resources)
}

// Resources returns a copy of the resource list in directory order.
func (e *ERF) Resources() []ERFResource {
	if e == nil {
		return nil
	}

	out := make([]ERFResource, len(e.resources))
	copy(out, e.resources)
	return out
}

// Get returns the payload for (name, restype), or nil when absent.
// Lookup is case-insensitive; absence is not an error.
func (e *ERF) Get(name string, restype ResourceType) []byte {
	if e == nil {
		return nil
	}

	i, ok := e.index[lookupKey(name, restype)]
	if !ok {
		return nil
	}

	return e.resources[i].Data
}

// Contains reports whether a resource with (name, restype) is present.
func (e *ERF) Contains(name string, restype ResourceType) bool {
	if e == nil {
		return false
	}

	_, ok := e.index[lookupKey(name, restype)]
	return ok
}

// SetData upserts the payload for (name, restype): it overwrites an existing
// resource in place (case-insensitive match) or appends a new one.
func (e *ERF) SetData(name string, restype ResourceType, data []byte) error {
	resref, err := NewResRef(name)
	if err != nil {
		return err
	}

	if i, ok := e.index[lookupKey(name, restype)]; ok {
		e.resources[i].Data = data
		return nil
	}

	e.resources = append(e.resources, ERFResource{ResRef: resref, Type: restype, Data: data})
	e.rebuildIndex()
	return nil
}

// Remove deletes the resource with (name, restype) and reports whether it was present.
func (e *ERF) Remove(name string, restype ResourceType) bool {
	if e == nil {
		return false
	}

	i, ok := e.index[lookupKey(name, restype)]
	if !ok {
		return false
	}

	e.resources = append(e.resources[:i], e.resources[i+1:]...)
	e.rebuildIndex()
	return true
}

// ToRIM re-keys the same resource set under a RIM container.
func (e *ERF) ToRIM() *RIM {
	rim := NewRIM()
	for _, res := range e.resources {
		rim.resources = append(rim.resources, RIMResource(res))
	}

	rim.rebuildIndex()
	return rim
}

// rebuildIndex recomputes the lookup index from the canonical resource list.
// The index is never patched incrementally.
func (e *ERF) rebuildIndex() {
	e.index = make(map[string]int, len(e.resources))
	for i, res := range e.resources {
		e.index[res.Identifier().Key()] = i
	}
}

// lookupKey folds a raw (name, type) pair into the index key form.
func lookupKey(name string, restype ResourceType) string {
	return ResourceIdentifier{ResRef: ResRef(name), Type: restype}.Key()
}

// ReadERF parses a full ERF/MOD/SAV container, payloads included.
func ReadERF(ra io.ReaderAt, size int64) (*ERF, error) {
	var header [erfHeaderSize]byte
	if err := readExact(ra, header[:], 0, "ERF header"); err != nil {
		if size < erfHeaderSize {
			return nil, fmt.Errorf("%w: file too short for ERF header", ErrInvalidHeader)
		}

		return nil, err
	}

	fileType, ok := erfTypeFromMagic(string(header[0:4]))
	if !ok {
		return nil, fmt.Errorf("%w: magic %q", ErrUnsupportedFormat, header[0:4])
	}
	if string(header[4:8]) != erfVersion {
		return nil, fmt.Errorf("%w: ERF version %q", ErrUnsupportedFormat, header[4:8])
	}

	languageCount := binary.LittleEndian.Uint32(header[8:12])
	entryCount := binary.LittleEndian.Uint32(header[16:20])
	offLocalized := binary.LittleEndian.Uint32(header[20:24])
	offKeys := binary.LittleEndian.Uint32(header[24:28])
	offResources := binary.LittleEndian.Uint32(header[28:32])

	erf := &ERF{
		FileType:          fileType,
		BuildYear:         binary.LittleEndian.Uint32(header[32:36]),
		BuildDay:          binary.LittleEndian.Uint32(header[36:40]),
		DescriptionStrRef: binary.LittleEndian.Uint32(header[40:44]),
	}

	description, err := readERFDescription(ra, size, offLocalized, languageCount)
	if err != nil {
		return nil, err
	}
	erf.Description = description

	if err := checkTableBounds(offKeys, entryCount, erfKeyEntrySize, size, "ERF key"); err != nil {
		return nil, err
	}
	if err := checkTableBounds(offResources, entryCount, erfResEntrySize, size, "ERF resource"); err != nil {
		return nil, err
	}

	erf.resources = make([]ERFResource, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		var key [erfKeyEntrySize]byte
		if err := readExact(ra, key[:], int64(offKeys)+int64(i)*erfKeyEntrySize, "ERF key entry"); err != nil {
			return nil, err
		}

		var res [erfResEntrySize]byte
		if err := readExact(ra, res[:], int64(offResources)+int64(i)*erfResEntrySize, "ERF resource entry"); err != nil {
			return nil, err
		}

		resref := resrefFromField(key[0:16])
		restype := TypeFromID(uint32(binary.LittleEndian.Uint16(key[20:22])))
		offset := binary.LittleEndian.Uint32(res[0:4])
		length := binary.LittleEndian.Uint32(res[4:8])

		id := ResourceIdentifier{ResRef: resref, Type: restype}
		if err := checkPayloadBounds(offset, length, size, id); err != nil {
			return nil, err
		}

		data := make([]byte, length)
		if err := readExact(ra, data, int64(offset), "ERF payload"); err != nil {
			return nil, err
		}

		erf.resources = append(erf.resources, ERFResource{ResRef: resref, Type: restype, Data: data})
	}

	erf.rebuildIndex()
	return erf, nil
}

// readERFDescription parses the localized description string list.
func readERFDescription(ra io.ReaderAt, size int64, offset uint32, count uint32) ([]LocalizedString, error) {
	if count == 0 {
		return nil, nil
	}

	decoder := charmap.Windows1252.NewDecoder()
	out := make([]LocalizedString, 0, count)
	pos := int64(offset)
	for i := uint32(0); i < count; i++ {
		var head [8]byte
		if err := readExact(ra, head[:], pos, "ERF localized string"); err != nil {
			return nil, err
		}

		languageID := binary.LittleEndian.Uint32(head[0:4])
		strLen := binary.LittleEndian.Uint32(head[4:8])
		if uint64(pos)+8+uint64(strLen) > uint64(size) {
			return nil, fmt.Errorf("%w: localized string exceeds file size", ErrCorruptIndex)
		}

		raw := make([]byte, strLen)
		if err := readExact(ra, raw, pos+8, "ERF localized string text"); err != nil {
			return nil, err
		}

		text, err := decoder.Bytes(bytes.TrimRight(raw, "\x00"))
		if err != nil {
			return nil, fmt.Errorf("decode localized string: %w", err)
		}

		out = append(out, LocalizedString{LanguageID: languageID, Text: string(text)})
		pos += 8 + int64(strLen)
	}

	return out, nil
}

// ReadERFBytes parses an ERF-family container from a byte slice.
func ReadERFBytes(data []byte) (*ERF, error) {
	return ReadERF(bytes.NewReader(data), int64(len(data)))
}

// ReadERFFile parses an ERF-family container from disk.
func ReadERFFile(path string) (*ERF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ERF: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat ERF: %w", err)
	}

	return ReadERF(f, fi.Size())
}

// WriteERF serializes the container. Offsets are always recomputed from
// scratch: tables are emitted in directory order and payloads follow
// contiguously.
func WriteERF(w io.Writer, erf *ERF) error {
	if erf == nil {
		return ErrNilCapsule
	}

	fileType := erf.FileType
	if fileType == "" {
		fileType = ERFTypeERF
	}
	if _, ok := erfTypeFromMagic(string(fileType)); !ok {
		return fmt.Errorf("%w: file type %q", ErrUnsupportedFormat, fileType)
	}

	description, localizedSize, err := encodeERFDescription(erf.Description)
	if err != nil {
		return err
	}

	entryCount := uint32(len(erf.resources)) //nolint:gosec // entry counts are far below uint32 range
	offLocalized := uint32(erfHeaderSize)
	offKeys := offLocalized + localizedSize
	offResources := offKeys + entryCount*erfKeyEntrySize
	payloadStart := uint64(offResources) + uint64(entryCount)*erfResEntrySize

	totalPayload := uint64(0)
	for _, res := range erf.resources {
		totalPayload += uint64(len(res.Data))
	}
	if payloadStart+totalPayload > math.MaxUint32 {
		return fmt.Errorf("%w: container exceeds 4 GiB", ErrCorruptIndex)
	}

	var header [erfHeaderSize]byte
	copy(header[0:4], string(fileType))
	copy(header[4:8], erfVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(erf.Description))) //nolint:gosec // bounded small list
	binary.LittleEndian.PutUint32(header[12:16], localizedSize)
	binary.LittleEndian.PutUint32(header[16:20], entryCount)
	binary.LittleEndian.PutUint32(header[20:24], offLocalized)
	binary.LittleEndian.PutUint32(header[24:28], offKeys)
	binary.LittleEndian.PutUint32(header[28:32], offResources)
	binary.LittleEndian.PutUint32(header[32:36], erf.BuildYear)
	binary.LittleEndian.PutUint32(header[36:40], erf.BuildDay)
	binary.LittleEndian.PutUint32(header[40:44], erf.DescriptionStrRef)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write ERF header: %w", err)
	}
	if _, err := w.Write(description); err != nil {
		return fmt.Errorf("write ERF localized strings: %w", err)
	}

	for i, res := range erf.resources {
		var key [erfKeyEntrySize]byte
		putResRefField(key[0:16], res.ResRef)
		binary.LittleEndian.PutUint32(key[16:20], uint32(i))           //nolint:gosec // index below entryCount
		binary.LittleEndian.PutUint16(key[20:22], uint16(res.Type.ID)) //nolint:gosec // ERF type ids fit uint16

		if _, err := w.Write(key[:]); err != nil {
			return fmt.Errorf("write ERF key entry: %w", err)
		}
	}

	offset := uint32(payloadStart) //nolint:gosec // bounded by 4 GiB check above
	for _, res := range erf.resources {
		var entry [erfResEntrySize]byte
		binary.LittleEndian.PutUint32(entry[0:4], offset)
		binary.LittleEndian.PutUint32(entry[4:8], uint32(len(res.Data))) //nolint:gosec // bounded by 4 GiB check above

		if _, err := w.Write(entry[:]); err != nil {
			return fmt.Errorf("write ERF resource entry: %w", err)
		}

		offset += uint32(len(res.Data)) //nolint:gosec // bounded by 4 GiB check above
	}

	for _, res := range erf.resources {
		if _, err := w.Write(res.Data); err != nil {
			return fmt.Errorf("write ERF payload %s: %w", res.Identifier(), err)
		}
	}

	return nil
}

// encodeERFDescription serializes localized description strings to windows-1252.
func encodeERFDescription(strings []LocalizedString) ([]byte, uint32, error) {
	if len(strings) == 0 {
		return nil, 0, nil
	}

	encoder := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	var buf bytes.Buffer
	for _, ls := range strings {
		raw, err := encoder.Bytes([]byte(ls.Text))
		if err != nil {
			return nil, 0, fmt.Errorf("encode localized string: %w", err)
		}

		var head [8]byte
		binary.LittleEndian.PutUint32(head[0:4], ls.LanguageID)
		binary.LittleEndian.PutUint32(head[4:8], uint32(len(raw))) //nolint:gosec // description strings are short
		buf.Write(head[:])
		buf.Write(raw)
	}

	return buf.Bytes(), uint32(buf.Len()), nil //nolint:gosec // bounded small buffer
}

// WriteERFFile serializes the container to disk, truncating any existing file.
func WriteERFFile(path string, erf *ERF) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create ERF file: %w", err)
	}

	if err := WriteERF(f, erf); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync ERF file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close ERF file: %w", err)
	}

	return nil
}

// MarshalBinary serializes the container to a byte slice.
func (e *ERF) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteERF(&buf, e); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
