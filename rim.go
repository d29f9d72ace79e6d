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
)

// RIM binary layout constants (V1.0).
const (
	rimMagic      = "RIM "
	rimVersion    = "V1.0"
	rimHeaderSize = 120
	rimEntrySize  = 32
)

// RIMResource is one fully loaded resource inside an in-memory RIM.
type RIMResource struct {
	// ResRef is the resource base name.
	ResRef ResRef
	// Type is the resource type.
	Type ResourceType
	// Data is the raw payload.
	Data []byte
}

// Identifier returns the (resref, type) identity of this resource.
func (r RIMResource) Identifier() ResourceIdentifier {
	return ResourceIdentifier{ResRef: r.ResRef, Type: r.Type}
}

// RIM is a fully parsed in-memory RIM container. Like ERF, the ordered
// resource list is canonical and the lookup index is derived from it.
type RIM struct {
	index     map[string]int
	resources []RIMResource
}

// NewRIM creates an empty RIM container.
func NewRIM() *RIM {
	return &RIM{index: map[string]int{}}
}

// Len returns the number of resources.
func (r *RIM) Len() int {
	if r == nil {
		return 0
	}

	return len(r.resources)
}

// Resources returns a copy of the resource list in directory order.
func (r *RIM) Resources() []RIMResource {
	if r == nil {
		return nil
	}

	out := make([]RIMResource, len(r.resources))
	copy(out, r.resources)
	return out
}

// Get returns the payload for (name, restype), or nil when absent.
// Lookup is case-insensitive; absence is not an error.
func (r *RIM) Get(name string, restype ResourceType) []byte {
	if r == nil {
		return nil
	}

	i, ok := r.index[lookupKey(name, restype)]
	if !ok {
		return nil
	}

	return r.resources[i].Data
}

// Contains reports whether a resource with (name, restype) is present.
func (r *RIM) Contains(name string, restype ResourceType) bool {
	if r == nil {
		return false
	}

	_, ok := r.index[lookupKey(name, restype)]
	return ok
}

// SetData upserts the payload for (name, restype): it overwrites an existing
// resource in place (case-insensitive match) or appends a new one.
func (r *RIM) SetData(name string, restype ResourceType, data []byte) error {
	resref, err := NewResRef(name)
	if err != nil {
		return err
	}

	if i, ok := r.index[lookupKey(name, restype)]; ok {
		r.resources[i].Data = data
		return nil
	}

	r.resources = append(r.resources, RIMResource{ResRef: resref, Type: restype, Data: data})
	r.rebuildIndex()
	return nil
}

// Remove deletes the resource with (name, restype) and reports whether it was present.
func (r *RIM) Remove(name string, restype ResourceType) bool {
	if r == nil {
		return false
	}

	i, ok := r.index[lookupKey(name, restype)]
	if !ok {
		return false
	}

	r.resources = append(r.resources[:i], r.resources[i+1:]...)
	r.rebuildIndex()
	return true
}

// ToERF re-keys the same resource set under an ERF-family container.
func (r *RIM) ToERF(fileType ERFType) *ERF {
	erf := NewERF(fileType)
	for _, res := range r.resources {
		erf.resources = append(erf.resources, ERFResource(res))
	}

	erf.rebuildIndex()
	return erf
}

// rebuildIndex recomputes the lookup index from the canonical resource list.
func (r *RIM) rebuildIndex() {
	r.index = make(map[string]int, len(r.resources))
	for i, res := range r.resources {
		r.index[res.Identifier().Key()] = i
	}
}

// ReadRIM parses a full RIM container, payloads included.
func ReadRIM(ra io.ReaderAt, size int64) (*RIM, error) {
	var header [20]byte
	if err := readExact(ra, header[:], 0, "RIM header"); err != nil {
		if size < int64(len(header)) {
			return nil, fmt.Errorf("%w: file too short for RIM header", ErrInvalidHeader)
		}

		return nil, err
	}

	if string(header[0:4]) != rimMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrUnsupportedFormat, header[0:4])
	}
	if string(header[4:8]) != rimVersion {
		return nil, fmt.Errorf("%w: RIM version %q", ErrUnsupportedFormat, header[4:8])
	}

	entryCount := binary.LittleEndian.Uint32(header[12:16])
	offEntries := binary.LittleEndian.Uint32(header[16:20])
	if err := checkTableBounds(offEntries, entryCount, rimEntrySize, size, "RIM entry"); err != nil {
		return nil, err
	}

	rim := NewRIM()
	rim.resources = make([]RIMResource, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		var entry [rimEntrySize]byte
		if err := readExact(ra, entry[:], int64(offEntries)+int64(i)*rimEntrySize, "RIM entry"); err != nil {
			return nil, err
		}

		resref := resrefFromField(entry[0:16])
		restype := TypeFromID(binary.LittleEndian.Uint32(entry[16:20]))
		offset := binary.LittleEndian.Uint32(entry[24:28])
		length := binary.LittleEndian.Uint32(entry[28:32])

		id := ResourceIdentifier{ResRef: resref, Type: restype}
		if err := checkPayloadBounds(offset, length, size, id); err != nil {
			return nil, err
		}

		data := make([]byte, length)
		if err := readExact(ra, data, int64(offset), "RIM payload"); err != nil {
			return nil, err
		}

		rim.resources = append(rim.resources, RIMResource{ResRef: resref, Type: restype, Data: data})
	}

	rim.rebuildIndex()
	return rim, nil
}

// ReadRIMBytes parses a RIM container from a byte slice.
func ReadRIMBytes(data []byte) (*RIM, error) {
	return ReadRIM(bytes.NewReader(data), int64(len(data)))
}

// ReadRIMFile parses a RIM container from disk.
func ReadRIMFile(path string) (*RIM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open RIM: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat RIM: %w", err)
	}

	return ReadRIM(f, fi.Size())
}

// WriteRIM serializes the container. Entry offsets are recomputed from
// scratch; payloads follow the entry table contiguously.
func WriteRIM(w io.Writer, rim *RIM) error {
	if rim == nil {
		return ErrNilCapsule
	}

	entryCount := uint32(len(rim.resources)) //nolint:gosec // entry counts are far below uint32 range
	payloadStart := uint64(rimHeaderSize) + uint64(entryCount)*rimEntrySize

	totalPayload := uint64(0)
	for _, res := range rim.resources {
		totalPayload += uint64(len(res.Data))
	}
	if payloadStart+totalPayload > math.MaxUint32 {
		return fmt.Errorf("%w: container exceeds 4 GiB", ErrCorruptIndex)
	}

	var header [rimHeaderSize]byte
	copy(header[0:4], rimMagic)
	copy(header[4:8], rimVersion)
	binary.LittleEndian.PutUint32(header[12:16], entryCount)
	binary.LittleEndian.PutUint32(header[16:20], rimHeaderSize)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write RIM header: %w", err)
	}

	offset := uint32(payloadStart) //nolint:gosec // bounded by 4 GiB check above
	for i, res := range rim.resources {
		var entry [rimEntrySize]byte
		putResRefField(entry[0:16], res.ResRef)
		binary.LittleEndian.PutUint32(entry[16:20], res.Type.ID)
		binary.LittleEndian.PutUint32(entry[20:24], uint32(i)) //nolint:gosec // index below entryCount
		binary.LittleEndian.PutUint32(entry[24:28], offset)
		binary.LittleEndian.PutUint32(entry[28:32], uint32(len(res.Data))) //nolint:gosec // bounded by 4 GiB check above

		if _, err := w.Write(entry[:]); err != nil {
			return fmt.Errorf("write RIM entry: %w", err)
		}

		offset += uint32(len(res.Data)) //nolint:gosec // bounded by 4 GiB check above
	}

	for _, res := range rim.resources {
		if _, err := w.Write(res.Data); err != nil {
			return fmt.Errorf("write RIM payload %s: %w", res.Identifier(), err)
		}
	}

	return nil
}

// WriteRIMFile serializes the container to disk, truncating any existing file.
func WriteRIMFile(path string, rim *RIM) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create RIM file: %w", err)
	}

	if err := WriteRIM(f, rim); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync RIM file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close RIM file: %w", err)
	}

	return nil
}

// MarshalBinary serializes the container to a byte slice.
func (r *RIM) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteRIM(&buf, r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
