// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import "errors"

// Sentinel errors for capsule and codec operations. Use errors.Is in callers.
var (
	// ErrInvalidResRef means a resource name is empty, too long, or contains path characters.
	ErrInvalidResRef = errors.New("invalid resref")
	// ErrUnsupportedExtension means the file extension names no known capsule format.
	ErrUnsupportedExtension = errors.New("unsupported capsule extension")
	// ErrUnsupportedFormat means the file magic names no known container format.
	ErrUnsupportedFormat = errors.New("unsupported container format")
	// ErrInvalidHeader means the container file is missing or has a bad header.
	ErrInvalidHeader = errors.New("invalid container file: missing or bad header")
	// ErrCorruptIndex means the container index tables are truncated or inconsistent with file size.
	ErrCorruptIndex = errors.New("corrupt container index")
	// ErrStaleDirectory means the backing file changed since the directory was indexed; Reload first.
	ErrStaleDirectory = errors.New("stale capsule directory: backing file changed, reload required")
	// ErrUnsavedAncestor means a nested capsule has no placeholder inside its parent yet.
	ErrUnsavedAncestor = errors.New("intermediate capsule not saved inside its parent: save the intermediate capsule first")
	// ErrNilCapsule means the capsule or container is nil.
	ErrNilCapsule = errors.New("capsule is nil")
	// ErrInvalidExtractRules means one or more extract include rules are invalid.
	ErrInvalidExtractRules = errors.New("invalid extract include rules")
)
