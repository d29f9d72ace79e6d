// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"fmt"
	"strings"
)

// maxResRefLen is the fixed name field width in container tables.
const maxResRefLen = 16

// ResRef is a resource base name: at most 16 characters, matched
// case-insensitively, never carrying an extension or path separators.
type ResRef string

// NewResRef validates and returns a resref from a raw name.
func NewResRef(name string) (ResRef, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidResRef)
	}
	if len(trimmed) > maxResRefLen {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidResRef, trimmed, maxResRefLen)
	}
	if strings.ContainsAny(trimmed, `/\.`) {
		return "", fmt.Errorf("%w: %q contains path or extension characters", ErrInvalidResRef, trimmed)
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidResRef, trimmed)
	}

	return ResRef(trimmed), nil
}

// String returns the resref as stored (original case preserved).
func (r ResRef) String() string {
	return string(r)
}

// Equal reports case-insensitive equality with another resref.
func (r ResRef) Equal(other ResRef) bool {
	return strings.EqualFold(string(r), string(other))
}

// key returns the case-folded map key form.
func (r ResRef) key() string {
	return strings.ToLower(string(r))
}

// ResourceIdentifier is the (resref, type) pair that uniquely names one
// resource inside a single container directory. Equality and hashing fold
// case on both halves; use Key as a map key.
type ResourceIdentifier struct {
	ResRef ResRef
	Type   ResourceType
}

// NewIdentifier validates the name half and builds an identifier.
func NewIdentifier(name string, restype ResourceType) (ResourceIdentifier, error) {
	resref, err := NewResRef(name)
	if err != nil {
		return ResourceIdentifier{}, err
	}

	return ResourceIdentifier{ResRef: resref, Type: restype}, nil
}

// Key returns the case-folded "name.ext" form used as lookup key.
func (id ResourceIdentifier) Key() string {
	return id.ResRef.key() + "." + id.Type.key()
}

// Equal reports case-insensitive equality with another identifier.
func (id ResourceIdentifier) Equal(other ResourceIdentifier) bool {
	return id.Key() == other.Key()
}

// Filename returns the on-disk style "name.ext" filename for this identifier.
func (id ResourceIdentifier) Filename() string {
	return id.ResRef.String() + "." + id.Type.Extension
}

// String returns the case-folded "name.ext" form.
func (id ResourceIdentifier) String() string {
	return id.Key()
}

// IdentifierFromFilename splits a "name.ext" filename into an identifier.
// It fails when the extension names no known resource type or the name half
// is not a valid resref.
func IdentifierFromFilename(filename string) (ResourceIdentifier, error) {
	base := strings.TrimSpace(filename)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return ResourceIdentifier{}, fmt.Errorf("%w: %q has no extension", ErrInvalidResRef, filename)
	}

	restype, ok := TypeFromExtension(base[dot+1:])
	if !ok {
		return ResourceIdentifier{}, fmt.Errorf("%w: %q", ErrUnsupportedExtension, base[dot+1:])
	}

	return NewIdentifier(base[:dot], restype)
}
