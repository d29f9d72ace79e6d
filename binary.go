// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"bytes"
	"fmt"
	"io"
)

// readExact reads exactly len(buf) bytes at offset and maps EOF to a corrupt
// index error naming the table.
func readExact(ra io.ReaderAt, buf []byte, offset int64, what string) error {
	n, err := ra.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read %s: %w", what, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: truncated %s", ErrCorruptIndex, what)
	}

	return nil
}

// resrefFromField decodes a fixed 16-byte NUL-padded name field.
func resrefFromField(field []byte) ResRef {
	end := bytes.IndexByte(field, 0)
	if end < 0 {
		end = len(field)
	}

	return ResRef(bytes.TrimRight(field[:end], "\x00 "))
}

// putResRefField encodes a resref into a fixed 16-byte NUL-padded field.
func putResRefField(dst []byte, r ResRef) {
	for i := range dst {
		dst[i] = 0
	}

	copy(dst, r.String())
}

// checkTableBounds validates that a table of count fixed-width records fits
// inside the container.
func checkTableBounds(offset uint32, count uint32, recordSize uint32, total int64, what string) error {
	end := uint64(offset) + uint64(count)*uint64(recordSize)
	if end > uint64(total) {
		return fmt.Errorf("%w: %s table exceeds file size (%d > %d)", ErrCorruptIndex, what, end, total)
	}

	return nil
}

// checkPayloadBounds validates that one payload region fits inside the container.
func checkPayloadBounds(offset uint32, size uint32, total int64, id ResourceIdentifier) error {
	end := uint64(offset) + uint64(size)
	if end > uint64(total) {
		return fmt.Errorf("%w: payload of %s exceeds file size (%d > %d)", ErrCorruptIndex, id, end, total)
	}

	return nil
}
