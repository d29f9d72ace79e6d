// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileResource is a lazy descriptor for one resource inside an on-disk
// container: identity plus byte offset and size. It never holds payload
// bytes; Data performs the actual read. The offset and size stay valid only
// until the owning capsule's next Reload.
type FileResource struct {
	filepath   string
	identifier ResourceIdentifier
	offset     uint32
	size       uint32
}

// newFileResource builds a descriptor for one directory entry.
func newFileResource(identifier ResourceIdentifier, path string, offset uint32, size uint32) FileResource {
	return FileResource{
		identifier: identifier,
		filepath:   path,
		offset:     offset,
		size:       size,
	}
}

// Identifier returns the (resref, type) identity of this resource.
func (fr FileResource) Identifier() ResourceIdentifier {
	return fr.identifier
}

// ResRef returns the resource base name.
func (fr FileResource) ResRef() ResRef {
	return fr.identifier.ResRef
}

// Type returns the resource type.
func (fr FileResource) Type() ResourceType {
	return fr.identifier.Type
}

// Offset returns the payload byte offset inside the owning container.
func (fr FileResource) Offset() uint32 {
	return fr.offset
}

// Size returns the payload size in bytes.
func (fr FileResource) Size() uint32 {
	return fr.size
}

// Filepath returns the owning container path.
func (fr FileResource) Filepath() string {
	return fr.filepath
}

// Filename returns the "name.ext" form of this resource.
func (fr FileResource) Filename() string {
	return fr.identifier.Filename()
}

// Data opens the owning container, seeks to the stored offset, and reads
// exactly Size bytes. A shrunk or rewritten backing file surfaces as a
// stale-directory error; reload the owning capsule and retry.
func (fr FileResource) Data() ([]byte, error) {
	f, err := os.Open(fr.filepath)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", filepath.Base(fr.filepath), err)
	}
	defer func() { _ = f.Close() }()

	return fr.readFrom(f)
}

// readFrom reads the payload from an already open container handle.
// Batch lookups share one handle across many descriptors through this path.
func (fr FileResource) readFrom(ra io.ReaderAt) ([]byte, error) {
	data := make([]byte, fr.size)
	n, err := ra.ReadAt(data, int64(fr.offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s from %s: %w", fr.identifier, filepath.Base(fr.filepath), err)
	}
	if uint32(n) != fr.size {
		return nil, fmt.Errorf("%w: %s in %s: got %d of %d bytes",
			ErrStaleDirectory, fr.identifier, filepath.Base(fr.filepath), n, fr.size)
	}

	return data, nil
}
