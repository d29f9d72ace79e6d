package aurora

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeTestMOD builds a MOD file on disk with the given name->data contents.
func writeTestMOD(t *testing.T, path string, contents map[string][]byte) {
	t.Helper()

	erf := NewERF(ERFTypeMOD)
	for filename, data := range contents {
		id, err := IdentifierFromFilename(filename)
		if err != nil {
			t.Fatalf("identifier %s: %v", filename, err)
		}
		if err := erf.SetData(id.ResRef.String(), id.Type, data); err != nil {
			t.Fatalf("SetData %s: %v", filename, err)
		}
	}

	if err := WriteERFFile(path, erf); err != nil {
		t.Fatalf("WriteERFFile: %v", err)
	}
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "not_a_capsule.txt"))
	if !errors.Is(err, ErrUnsupportedExtension) {
		t.Fatalf("expected ErrUnsupportedExtension, got %v", err)
	}
}

func TestOpen_MissingFileWithoutCreate(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mod"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestOpenWithOptions_CreateMissingMOD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.mod")

	c, err := OpenWithOptions(path, CapsuleOptions{CreateMissing: true})
	if err != nil {
		t.Fatalf("OpenWithOptions: %v", err)
	}

	resources, err := c.Resources(false)
	if err != nil {
		t.Fatalf("Resources: %v", err)
	}
	if len(resources) != 0 {
		t.Fatalf("new capsule has %d resources, want 0", len(resources))
	}

	// The created file must be a valid MOD for the format reader too.
	erf, err := ReadERFFile(path)
	if err != nil {
		t.Fatalf("ReadERFFile on created capsule: %v", err)
	}
	if erf.FileType != ERFTypeMOD {
		t.Errorf("FileType = %q, want MOD", erf.FileType)
	}
	if erf.Len() != 0 {
		t.Errorf("Len = %d, want 0", erf.Len())
	}
}

func TestOpenWithOptions_CreateMissingRIM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.rim")

	if _, err := OpenWithOptions(path, CapsuleOptions{CreateMissing: true}); err != nil {
		t.Fatalf("OpenWithOptions: %v", err)
	}

	rim, err := ReadRIMFile(path)
	if err != nil {
		t.Fatalf("ReadRIMFile on created capsule: %v", err)
	}
	if rim.Len() != 0 {
		t.Errorf("Len = %d, want 0", rim.Len())
	}
}

func TestCapsule_ReloadRejectsUnknownMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.mod")
	if err := os.WriteFile(path, []byte("GARBAGEDATA_LONG_ENOUGH"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Reload(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCapsule_OffsetsMatchFullReparse(t *testing.T) {
	t.Parallel()

	contents := map[string][]byte{
		"m13aa.are":     []byte("area"),
		"m13aa.git":     []byte("instances go here"),
		"k_enter.ncs":   {0x01, 0x02, 0x03},
		"n_bastila.utc": []byte("bastila"),
	}

	path := filepath.Join(t.TempDir(), "level.mod")
	writeTestMOD(t, path, contents)

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resources, err := c.Resources(false)
	if err != nil {
		t.Fatalf("Resources: %v", err)
	}
	if len(resources) != len(contents) {
		t.Fatalf("directory has %d entries, want %d", len(resources), len(contents))
	}

	// Lazy reads must agree with a full reparse of the container.
	erf, err := ReadERFFile(path)
	if err != nil {
		t.Fatalf("ReadERFFile: %v", err)
	}

	for _, fr := range resources {
		lazy, err := fr.Data()
		if err != nil {
			t.Fatalf("Data %s: %v", fr.Identifier(), err)
		}

		full := erf.Get(fr.ResRef().String(), fr.Type())
		if !bytes.Equal(lazy, full) {
			t.Errorf("%s: lazy read %q != reparse %q", fr.Identifier(), lazy, full)
		}
	}
}

func TestCapsule_ResourceAbsentIsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.erf")
	writeTestMOD(t, path, map[string][]byte{"only.txt": []byte("here")})

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	data, err := c.Resource("nothere", TypeUTC, false)
	if err != nil {
		t.Fatalf("Resource on absent errored: %v", err)
	}
	if data != nil {
		t.Fatalf("Resource on absent = %q, want nil", data)
	}

	exists, err := c.Exists("only", TypeTXT, false)
	if err != nil || !exists {
		t.Fatalf("Exists(only.txt) = %v, %v", exists, err)
	}

	info, err := c.Info("nothere", TypeUTC, false)
	if err != nil {
		t.Fatalf("Info on absent errored: %v", err)
	}
	if info != nil {
		t.Fatalf("Info on absent = %+v, want nil", info)
	}
}

func TestCapsule_BatchMatchesSingleLookups(t *testing.T) {
	contents := map[string][]byte{
		"one.txt": []byte("1"),
		"two.txt": []byte("22"),
	}

	path := filepath.Join(t.TempDir(), "batch.mod")
	writeTestMOD(t, path, contents)

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	present := ResourceIdentifier{ResRef: "ONE", Type: TypeTXT}
	alsoPresent := ResourceIdentifier{ResRef: "two", Type: TypeTXT}
	absent := ResourceIdentifier{ResRef: "three", Type: TypeTXT}

	results, err := c.Batch([]ResourceIdentifier{present, alsoPresent, absent}, false)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d entries, want 3", len(results))
	}

	for _, query := range []ResourceIdentifier{present, alsoPresent} {
		single, err := c.Resource(query.ResRef.String(), query.Type, false)
		if err != nil {
			t.Fatalf("Resource %s: %v", query, err)
		}

		batched := results[query]
		if batched == nil {
			t.Fatalf("Batch[%s] = nil for present resource", query)
		}
		if !bytes.Equal(batched.Data, single) {
			t.Errorf("Batch[%s] = %q, Resource = %q", query, batched.Data, single)
		}
	}

	if results[absent] != nil {
		t.Fatalf("Batch[absent] = %+v, want nil", results[absent])
	}
}

func TestCapsule_AddRewritesAndReindexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.mod")
	writeTestMOD(t, path, map[string][]byte{"keep.txt": []byte("keep")})

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Add("added", TypeUTC, []byte("new creature")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	data, err := c.Resource("Added", TypeUTC, false)
	if err != nil {
		t.Fatalf("Resource after Add: %v", err)
	}
	if !bytes.Equal(data, []byte("new creature")) {
		t.Fatalf("added payload = %q", data)
	}

	kept, err := c.Resource("keep", TypeTXT, false)
	if err != nil || !bytes.Equal(kept, []byte("keep")) {
		t.Fatalf("pre-existing resource damaged: %q, %v", kept, err)
	}

	// Upsert replaces in place.
	if err := c.Add("ADDED", TypeUTC, []byte("changed")); err != nil {
		t.Fatalf("Add upsert: %v", err)
	}
	resources, err := c.Resources(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(resources) != 2 {
		t.Fatalf("directory has %d entries after upsert, want 2", len(resources))
	}
}

func TestCapsule_AddOnRIM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.rim")
	if err := WriteRIMFile(path, NewRIM()); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Add("tile", TypeARE, []byte("rim payload")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rim, err := ReadRIMFile(path)
	if err != nil {
		t.Fatalf("ReadRIMFile: %v", err)
	}
	if got := rim.Get("tile", TypeARE); !bytes.Equal(got, []byte("rim payload")) {
		t.Fatalf("rim.Get = %q", got)
	}
}

func TestCapsule_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shrink.mod")
	writeTestMOD(t, path, map[string][]byte{
		"gone.txt": []byte("bye"),
		"stay.txt": []byte("hi"),
	})

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := c.Remove("GONE", TypeTXT)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("Remove must report the resource was present")
	}

	removed, err = c.Remove("gone", TypeTXT)
	if err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	if removed {
		t.Fatal("Remove on absent must report false")
	}

	exists, err := c.Exists("stay", TypeTXT, false)
	if err != nil || !exists {
		t.Fatalf("survivor missing: %v, %v", exists, err)
	}
}

func TestFileResource_StaleAfterShrink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.mod")
	writeTestMOD(t, path, map[string][]byte{"big.txt": bytes.Repeat([]byte("x"), 512)})

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	info, err := c.Info("big", TypeTXT, false)
	if err != nil || info == nil {
		t.Fatalf("Info: %+v, %v", info, err)
	}

	// Shrink the backing file underneath the stored descriptor.
	writeTestMOD(t, path, map[string][]byte{"big.txt": []byte("tiny")})

	if _, err := info.Data(); !errors.Is(err, ErrStaleDirectory) {
		t.Fatalf("expected ErrStaleDirectory, got %v", err)
	}

	// After a reload the fresh descriptor reads cleanly.
	info, err = c.Info("big", TypeTXT, true)
	if err != nil || info == nil {
		t.Fatalf("Info after reload: %+v, %v", info, err)
	}
	data, err := info.Data()
	if err != nil {
		t.Fatalf("Data after reload: %v", err)
	}
	if !bytes.Equal(data, []byte("tiny")) {
		t.Fatalf("data after reload = %q", data)
	}
}

func TestCapsule_PathAndFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "named.sav")
	writeTestMOD(t, path, nil)

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Path() != path {
		t.Errorf("Path = %q, want %q", c.Path(), path)
	}
	if c.Filename() != "named.sav" {
		t.Errorf("Filename = %q, want named.sav", c.Filename())
	}
	if c.Format() != FormatSAV {
		t.Errorf("Format = %v, want FormatSAV", c.Format())
	}
}
