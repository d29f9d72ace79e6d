// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CapsuleFormat tags the container layout behind one capsule path.
// Dispatch happens once per load, by extension at construction and by magic
// during Reload.
type CapsuleFormat uint8

// Capsule container formats.
const (
	// FormatUnknown marks an unclassified path.
	FormatUnknown CapsuleFormat = iota
	// FormatERF is a generic encapsulated resource file.
	FormatERF
	// FormatMOD is a game module (ERF layout).
	FormatMOD
	// FormatSAV is a save-game capsule (ERF layout).
	FormatSAV
	// FormatRIM is a resource image file.
	FormatRIM
)

// IsERFFamily reports whether this format uses the ERF binary layout.
func (f CapsuleFormat) IsERFFamily() bool {
	return f == FormatERF || f == FormatMOD || f == FormatSAV
}

// erfType returns the header tag for ERF-family formats.
func (f CapsuleFormat) erfType() ERFType {
	switch f {
	case FormatMOD:
		return ERFTypeMOD
	case FormatSAV:
		return ERFTypeSAV
	default:
		return ERFTypeERF
	}
}

// capsuleFormatFromPath classifies a path by extension.
func capsuleFormatFromPath(path string) (CapsuleFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "erf":
		return FormatERF, nil
	case "mod":
		return FormatMOD, nil
	case "sav":
		return FormatSAV, nil
	case "rim":
		return FormatRIM, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Base(path))
	}
}

// CapsuleOptions configures capsule construction.
type CapsuleOptions struct {
	// CreateMissing writes a valid zero-resource container when the path
	// does not exist yet.
	CreateMissing bool
}

// Capsule wraps one on-disk ERF/MOD/SAV/RIM file and serves resource
// lookups by seek and read, without holding payloads in memory. The
// directory is built by one format-sniffing pass over the header and index
// tables and is fully rebuilt, never patched, on Reload.
//
// A capsule's directory is owned exclusively by that instance. Concurrent
// capsules over the same physical path are unsynchronized; the caller must
// serialize access, since Add rewrites the entire file.
type Capsule struct {
	path      string
	index     map[string]int
	resources []FileResource
	format    CapsuleFormat
	loaded    bool
}

// Open wraps an existing capsule file.
func Open(path string) (*Capsule, error) {
	return OpenWithOptions(path, CapsuleOptions{})
}

// OpenWithOptions wraps a capsule file, optionally creating an empty
// container when the path does not exist. An extension naming no known
// capsule format fails fast; no partial capsule is returned.
func OpenWithOptions(path string, opts CapsuleOptions) (*Capsule, error) {
	format, err := capsuleFormatFromPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || !opts.CreateMissing {
			return nil, fmt.Errorf("stat capsule: %w", err)
		}

		if err := writeEmptyContainer(path, format); err != nil {
			return nil, err
		}
	}

	return &Capsule{path: path, format: format}, nil
}

// writeEmptyContainer creates a valid zero-resource container file.
func writeEmptyContainer(path string, format CapsuleFormat) error {
	if format == FormatRIM {
		return WriteRIMFile(path, NewRIM())
	}

	return WriteERFFile(path, NewERF(format.erfType()))
}

// Path returns the capsule's file path.
func (c *Capsule) Path() string {
	if c == nil {
		return ""
	}

	return c.path
}

// Filename returns the capsule's base filename.
func (c *Capsule) Filename() string {
	if c == nil {
		return ""
	}

	return filepath.Base(c.path)
}

// Format returns the capsule's container format as classified by extension.
func (c *Capsule) Format() CapsuleFormat {
	if c == nil {
		return FormatUnknown
	}

	return c.format
}

// Reload rebuilds the whole directory from the on-disk header and index
// tables. Payload bytes are never touched. Every mutation goes through a
// Reload before returning, so descriptors handed out earlier go stale.
func (c *Capsule) Reload() error {
	if c == nil {
		return ErrNilCapsule
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open capsule: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat capsule: %w", err)
	}

	var magic [8]byte
	if err := readExact(f, magic[:], 0, "capsule magic"); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidHeader, c.Filename())
	}

	var resources []FileResource
	switch {
	case isERFMagic(string(magic[0:4])):
		resources, err = loadERFDirectory(f, fi.Size(), c.path)
	case string(magic[0:4]) == rimMagic:
		resources, err = loadRIMDirectory(f, fi.Size(), c.path)
	default:
		return fmt.Errorf("%w: %s has magic %q", ErrUnsupportedFormat, c.Filename(), magic[0:4])
	}
	if err != nil {
		return err
	}

	c.resources = resources
	c.index = make(map[string]int, len(resources))
	for i, fr := range resources {
		c.index[fr.Identifier().Key()] = i
	}
	c.loaded = true

	return nil
}

// isERFMagic reports whether magic names an ERF-family container.
func isERFMagic(magic string) bool {
	_, ok := erfTypeFromMagic(magic)
	return ok
}

// loadERFDirectory indexes an ERF-family container without reading payloads.
func loadERFDirectory(ra io.ReaderAt, size int64, path string) ([]FileResource, error) {
	var header [erfHeaderSize]byte
	if err := readExact(ra, header[:], 0, "ERF header"); err != nil {
		return nil, err
	}
	if string(header[4:8]) != erfVersion {
		return nil, fmt.Errorf("%w: ERF version %q", ErrUnsupportedFormat, header[4:8])
	}

	entryCount := binary.LittleEndian.Uint32(header[16:20])
	offKeys := binary.LittleEndian.Uint32(header[24:28])
	offResources := binary.LittleEndian.Uint32(header[28:32])

	if err := checkTableBounds(offKeys, entryCount, erfKeyEntrySize, size, "ERF key"); err != nil {
		return nil, err
	}
	if err := checkTableBounds(offResources, entryCount, erfResEntrySize, size, "ERF resource"); err != nil {
		return nil, err
	}

	// One bulk read per table keeps indexing at two syscalls regardless of
	// entry count.
	keyTable := make([]byte, int64(entryCount)*erfKeyEntrySize)
	if err := readExact(ra, keyTable, int64(offKeys), "ERF key table"); err != nil {
		return nil, err
	}

	resTable := make([]byte, int64(entryCount)*erfResEntrySize)
	if err := readExact(ra, resTable, int64(offResources), "ERF resource table"); err != nil {
		return nil, err
	}

	resources := make([]FileResource, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		key := keyTable[i*erfKeyEntrySize : (i+1)*erfKeyEntrySize]
		res := resTable[i*erfResEntrySize : (i+1)*erfResEntrySize]

		id := ResourceIdentifier{
			ResRef: resrefFromField(key[0:16]),
			Type:   TypeFromID(uint32(binary.LittleEndian.Uint16(key[20:22]))),
		}
		offset := binary.LittleEndian.Uint32(res[0:4])
		length := binary.LittleEndian.Uint32(res[4:8])
		if err := checkPayloadBounds(offset, length, size, id); err != nil {
			return nil, err
		}

		resources = append(resources, newFileResource(id, path, offset, length))
	}

	return resources, nil
}

// loadRIMDirectory indexes a RIM container without reading payloads.
func loadRIMDirectory(ra io.ReaderAt, size int64, path string) ([]FileResource, error) {
	var header [20]byte
	if err := readExact(ra, header[:], 0, "RIM header"); err != nil {
		return nil, err
	}
	if string(header[4:8]) != rimVersion {
		return nil, fmt.Errorf("%w: RIM version %q", ErrUnsupportedFormat, header[4:8])
	}

	entryCount := binary.LittleEndian.Uint32(header[12:16])
	offEntries := binary.LittleEndian.Uint32(header[16:20])
	if err := checkTableBounds(offEntries, entryCount, rimEntrySize, size, "RIM entry"); err != nil {
		return nil, err
	}

	table := make([]byte, int64(entryCount)*rimEntrySize)
	if err := readExact(ra, table, int64(offEntries), "RIM entry table"); err != nil {
		return nil, err
	}

	resources := make([]FileResource, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		entry := table[i*rimEntrySize : (i+1)*rimEntrySize]

		id := ResourceIdentifier{
			ResRef: resrefFromField(entry[0:16]),
			Type:   TypeFromID(binary.LittleEndian.Uint32(entry[16:20])),
		}
		offset := binary.LittleEndian.Uint32(entry[24:28])
		length := binary.LittleEndian.Uint32(entry[28:32])
		if err := checkPayloadBounds(offset, length, size, id); err != nil {
			return nil, err
		}

		resources = append(resources, newFileResource(id, path, offset, length))
	}

	return resources, nil
}

// ensureLoaded indexes the capsule on first use or when a refresh is forced.
func (c *Capsule) ensureLoaded(reload bool) error {
	if c == nil {
		return ErrNilCapsule
	}

	if !c.loaded || reload {
		return c.Reload()
	}

	return nil
}

// Resources returns the directory, optionally refreshing it first.
func (c *Capsule) Resources(reload bool) ([]FileResource, error) {
	if err := c.ensureLoaded(reload); err != nil {
		return nil, err
	}

	out := make([]FileResource, len(c.resources))
	copy(out, c.resources)
	return out, nil
}

// Resource reads the payload of one resource, or nil when the capsule holds
// no resource with that identity. Absence is never an error.
func (c *Capsule) Resource(name string, restype ResourceType, reload bool) ([]byte, error) {
	if err := c.ensureLoaded(reload); err != nil {
		return nil, err
	}

	i, ok := c.index[lookupKey(name, restype)]
	if !ok {
		return nil, nil
	}

	return c.resources[i].Data()
}

// Exists reports whether the capsule holds a resource with this identity.
func (c *Capsule) Exists(name string, restype ResourceType, reload bool) (bool, error) {
	if err := c.ensureLoaded(reload); err != nil {
		return false, err
	}

	_, ok := c.index[lookupKey(name, restype)]
	return ok, nil
}

// Info returns the lazy descriptor for one resource, or nil when absent.
func (c *Capsule) Info(name string, restype ResourceType, reload bool) (*FileResource, error) {
	if err := c.ensureLoaded(reload); err != nil {
		return nil, err
	}

	i, ok := c.index[lookupKey(name, restype)]
	if !ok {
		return nil, nil
	}

	fr := c.resources[i]
	return &fr, nil
}

// ResourceResult is one fetched payload from a Batch call.
type ResourceResult struct {
	// FileResource is the directory descriptor the payload was read through.
	FileResource
	// Data is the payload.
	Data []byte
}

// Batch reads many resources through one open file handle, amortizing the
// open cost across all queries. Semantically it equals one Resource call per
// query: present resources map to results, absent ones map to nil.
func (c *Capsule) Batch(queries []ResourceIdentifier, reload bool) (map[ResourceIdentifier]*ResourceResult, error) {
	if err := c.ensureLoaded(reload); err != nil {
		return nil, err
	}

	out := make(map[ResourceIdentifier]*ResourceResult, len(queries))
	if len(queries) == 0 {
		return out, nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open capsule: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, query := range queries {
		i, ok := c.index[query.Key()]
		if !ok {
			out[query] = nil
			continue
		}

		data, err := c.resources[i].readFrom(f)
		if err != nil {
			return nil, err
		}

		out[query] = &ResourceResult{FileResource: c.resources[i], Data: data}
	}

	return out, nil
}

// Add upserts one resource and rewrites the whole container file. The cost
// is O(total container size); there is no in-place or append path. The
// directory is rebuilt before returning.
func (c *Capsule) Add(name string, restype ResourceType, data []byte) error {
	if c == nil {
		return ErrNilCapsule
	}

	if err := c.mutate(func(container *nestedContainer) error {
		return container.setData(name, restype, data)
	}); err != nil {
		return err
	}

	return c.Reload()
}

// Remove deletes one resource and rewrites the whole container file. It
// reports whether the resource was present; removing an absent resource is
// not an error. The directory is rebuilt before returning.
func (c *Capsule) Remove(name string, restype ResourceType) (bool, error) {
	if c == nil {
		return false, ErrNilCapsule
	}

	removed := false
	if err := c.mutate(func(container *nestedContainer) error {
		removed = container.remove(name, restype)
		return nil
	}); err != nil {
		return false, err
	}

	return removed, c.Reload()
}

// mutate runs one read-modify-rewrite cycle over the backing file.
func (c *Capsule) mutate(apply func(*nestedContainer) error) error {
	container, err := readContainerFile(c.path, c.format)
	if err != nil {
		return err
	}

	if err := apply(container); err != nil {
		return err
	}

	return container.writeFile(c.path)
}
