// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// nestedContainer is the tagged union over the in-memory container variants
// the resolver rewrites. One variant is selected per level at load time.
type nestedContainer struct {
	erf    *ERF
	rim    *RIM
	format CapsuleFormat
}

// newContainer creates an empty in-memory container of the given format.
func newContainer(format CapsuleFormat) *nestedContainer {
	if format == FormatRIM {
		return &nestedContainer{format: format, rim: NewRIM()}
	}

	return &nestedContainer{format: format, erf: NewERF(format.erfType())}
}

// readContainerFile parses a container file into the matching variant.
func readContainerFile(path string, format CapsuleFormat) (*nestedContainer, error) {
	if format == FormatRIM {
		rim, err := ReadRIMFile(path)
		if err != nil {
			return nil, err
		}

		return &nestedContainer{format: format, rim: rim}, nil
	}

	erf, err := ReadERFFile(path)
	if err != nil {
		return nil, err
	}

	return &nestedContainer{format: format, erf: erf}, nil
}

// parseContainerBytes parses extracted payload bytes into the matching variant.
func parseContainerBytes(data []byte, format CapsuleFormat) (*nestedContainer, error) {
	if format == FormatRIM {
		rim, err := ReadRIMBytes(data)
		if err != nil {
			return nil, err
		}

		return &nestedContainer{format: format, rim: rim}, nil
	}

	erf, err := ReadERFBytes(data)
	if err != nil {
		return nil, err
	}

	return &nestedContainer{format: format, erf: erf}, nil
}

// get returns the payload for (name, restype), or nil when absent.
func (nc *nestedContainer) get(name string, restype ResourceType) []byte {
	if nc.format == FormatRIM {
		return nc.rim.Get(name, restype)
	}

	return nc.erf.Get(name, restype)
}

// setData upserts one resource payload.
func (nc *nestedContainer) setData(name string, restype ResourceType, data []byte) error {
	if nc.format == FormatRIM {
		return nc.rim.SetData(name, restype, data)
	}

	return nc.erf.SetData(name, restype, data)
}

// remove deletes one resource and reports whether it was present.
func (nc *nestedContainer) remove(name string, restype ResourceType) bool {
	if nc.format == FormatRIM {
		return nc.rim.Remove(name, restype)
	}

	return nc.erf.Remove(name, restype)
}

// marshal serializes the container to bytes, recomputing all offsets.
func (nc *nestedContainer) marshal() ([]byte, error) {
	if nc.format == FormatRIM {
		return nc.rim.MarshalBinary()
	}

	return nc.erf.MarshalBinary()
}

// writeFile serializes the container over the given file in a single write.
func (nc *nestedContainer) writeFile(path string) error {
	if nc.format == FormatRIM {
		return WriteRIMFile(path, nc.rim)
	}

	return WriteERFFile(path, nc.erf)
}

// NestedSegment is one virtual capsule level inside a nested path: a
// capsule-typed name that exists only as a resource inside its parent.
type NestedSegment struct {
	// Name is the segment's base name without extension.
	Name string
	// Type is the segment's capsule resource type (erf/mod/sav/rim).
	Type ResourceType
	// Format is the container layout used to parse this level.
	Format CapsuleFormat
}

// NestedChain is the classification of one nested resource path: the
// physical root container on disk, the ordered virtual capsule segments
// inside it (outermost first), and the leaf resource identity. The
// classification is computed once per resolve, keeping the chain walk
// deterministic and testable apart from payload I/O.
type NestedChain struct {
	// Root is the physical container file path; empty when the path is a
	// plain on-disk file with no capsule ancestry.
	Root string
	// Leaf names the innermost resource the chain addresses.
	Leaf ResourceIdentifier
	// Segments are the virtual capsule levels inside Root, outermost first.
	Segments []NestedSegment
	// RootFormat is Root's container layout, classified by real extension.
	RootFormat CapsuleFormat
}

// IsNested reports whether the path addresses a resource inside a capsule.
func (ch *NestedChain) IsNested() bool {
	return ch != nil && ch.Root != ""
}

// ClassifyNestedPath walks a resource path upward, collecting every parent
// segment that is capsule-typed but does not independently exist on disk.
// The walk stops at the first segment that is a real file (the physical
// root) or a real directory (no capsule ancestry).
func ClassifyNestedPath(path string) (*NestedChain, error) {
	cleaned := filepath.Clean(path)
	leaf, err := IdentifierFromFilename(filepath.Base(cleaned))
	if err != nil {
		return nil, err
	}

	chain := &NestedChain{Leaf: leaf}
	var segments []NestedSegment // collected innermost first

	cur := filepath.Dir(cleaned)
	for {
		base := filepath.Base(cur)
		format, formatErr := capsuleFormatFromPath(base)
		fi, statErr := os.Stat(cur)

		switch {
		case statErr == nil && fi.Mode().IsRegular():
			if formatErr != nil {
				return nil, fmt.Errorf("%w: %q is a file, not a capsule", ErrUnsupportedExtension, base)
			}

			chain.Root = cur
			chain.RootFormat = format
			chain.Segments = reverseSegments(segments)
			return chain, nil
		case statErr == nil:
			// Real directory: nothing above this level is virtual.
			if len(segments) > 0 {
				return nil, fmt.Errorf("%w: %q does not exist on disk", ErrUnsavedAncestor, segments[len(segments)-1].Name)
			}

			return chain, nil
		case formatErr == nil:
			// Missing from disk but capsule-typed: a virtual level.
			segments = append(segments, NestedSegment{
				Name:   strings.TrimSuffix(base, filepath.Ext(base)),
				Type:   capsuleResourceType(format),
				Format: format,
			})
			cur = filepath.Dir(cur)
		default:
			return nil, fmt.Errorf("resolve %s: %w", cur, statErr)
		}
	}
}

// capsuleResourceType maps a container format to its resource type.
func capsuleResourceType(format CapsuleFormat) ResourceType {
	switch format {
	case FormatMOD:
		return TypeMOD
	case FormatSAV:
		return TypeSAV
	case FormatRIM:
		return TypeRIM
	default:
		return TypeERF
	}
}

// reverseSegments flips an innermost-first collection to outermost-first.
func reverseSegments(segments []NestedSegment) []NestedSegment {
	out := make([]NestedSegment, len(segments))
	for i, seg := range segments {
		out[len(segments)-1-i] = seg
	}

	return out
}

// NestedSaveOptions configures nested save behavior.
type NestedSaveOptions struct {
	// SkipLeaf leaves the leaf's own payload untouched: its owning editor
	// writes those bytes itself. Ancestor capsules are still re-serialized,
	// which avoids double-writing the same payload when the leaf is a
	// capsule with an editor of its own.
	SkipLeaf bool
}

// SaveNested writes data as the resource named by path, where path may
// address a resource nested arbitrarily deep inside capsule files. Every
// ancestor capsule is rewritten in turn and the single physical root file
// is overwritten in one write.
func SaveNested(path string, data []byte) error {
	return SaveNestedWithOptions(path, data, NestedSaveOptions{})
}

// SaveNestedWithOptions is SaveNested with explicit options.
//
// The resolver never fabricates missing intermediate capsules: each virtual
// level must already exist as a resource inside its parent, otherwise the
// save fails with ErrUnsavedAncestor and the intermediate capsule must be
// saved first.
func SaveNestedWithOptions(path string, data []byte, opts NestedSaveOptions) error {
	chain, err := ClassifyNestedPath(path)
	if err != nil {
		return err
	}

	if !chain.IsNested() {
		if opts.SkipLeaf {
			return nil
		}

		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}

		return nil
	}

	// Load the chain top-down: root first, then each virtual level parsed
	// from its parent's payload bytes.
	containers := make([]*nestedContainer, 0, len(chain.Segments)+1)
	root, err := readContainerFile(chain.Root, chain.RootFormat)
	if err != nil {
		return err
	}
	containers = append(containers, root)

	for _, seg := range chain.Segments {
		parent := containers[len(containers)-1]
		payload := parent.get(seg.Name, seg.Type)
		if payload == nil {
			return fmt.Errorf("%w: %s.%s", ErrUnsavedAncestor, seg.Name, seg.Type)
		}

		child, err := parseContainerBytes(payload, seg.Format)
		if err != nil {
			return fmt.Errorf("parse nested capsule %s.%s: %w", seg.Name, seg.Type, err)
		}

		containers = append(containers, child)
	}

	// Propagate bottom-up: set the edited payload into the innermost level,
	// then re-serialize each child into its parent under the child's own key.
	innermost := containers[len(containers)-1]
	if !opts.SkipLeaf {
		if err := innermost.setData(chain.Leaf.ResRef.String(), chain.Leaf.Type, data); err != nil {
			return err
		}
	}

	for i := len(containers) - 1; i > 0; i-- {
		childBytes, err := containers[i].marshal()
		if err != nil {
			return err
		}

		seg := chain.Segments[i-1]
		if err := containers[i-1].setData(seg.Name, seg.Type, childBytes); err != nil {
			return err
		}
	}

	return containers[0].writeFile(chain.Root)
}
