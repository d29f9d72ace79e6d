package aurora

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func buildTestBIF(t *testing.T, format BIFFormat) *BIF {
	t.Helper()

	bif := NewBIF(format)
	entries := []struct {
		name string
		typ  ResourceType
		data []byte
	}{
		{"n_gendroid", TypeUTC, []byte("droid blueprint")},
		{"plc_crate", TypeUTP, []byte("crate blueprint")},
		{"k_ai_master", TypeNCS, bytes.Repeat([]byte{0x42, 0x00, 0x17}, 64)},
	}

	for _, e := range entries {
		if _, err := bif.Add(e.name, e.typ, e.data); err != nil {
			t.Fatalf("Add %s: %v", e.name, err)
		}
	}

	return bif
}

func TestBIF_RoundTripPlain(t *testing.T) {
	t.Parallel()

	bif := buildTestBIF(t, BIFFormatPlain)
	raw, err := bif.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	decoded, err := ReadBIFBytes(raw)
	if err != nil {
		t.Fatalf("ReadBIFBytes: %v", err)
	}
	if decoded.Format != BIFFormatPlain {
		t.Errorf("Format = %q, want BIFF", decoded.Format)
	}
	if decoded.Len() != bif.Len() {
		t.Fatalf("Len = %d, want %d", decoded.Len(), bif.Len())
	}

	for _, want := range bif.Resources() {
		got, ok := decoded.ResourceByID(want.ID)
		if !ok {
			t.Fatalf("id %d missing after round trip", want.ID)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Errorf("id %d data = %q, want %q", want.ID, got.Data, want.Data)
		}
		if got.Type.ID != want.Type.ID {
			t.Errorf("id %d type = %v, want %v", want.ID, got.Type, want.Type)
		}
		if got.PackedSize != 0 {
			t.Errorf("plain BIF must carry no packed size, got %d", got.PackedSize)
		}
	}
}

func TestBIF_RoundTripLZMA(t *testing.T) {
	t.Parallel()

	bif := buildTestBIF(t, BIFFormatLZMA)
	raw, err := bif.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	decoded, err := ReadBIFBytes(raw)
	if err != nil {
		t.Fatalf("ReadBIFBytes: %v", err)
	}
	if decoded.Format != BIFFormatLZMA {
		t.Errorf("Format = %q, want BZF", decoded.Format)
	}

	for _, want := range bif.Resources() {
		got, ok := decoded.ResourceByID(want.ID)
		if !ok {
			t.Fatalf("id %d missing after round trip", want.ID)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Errorf("id %d data = %q, want %q", want.ID, got.Data, want.Data)
		}
		if got.PackedSize == 0 {
			t.Errorf("id %d must carry a packed size", want.ID)
		}
	}
}

func TestReadBIF_BadMagic(t *testing.T) {
	raw := make([]byte, bifHeaderSize)
	copy(raw, "NOPEV1  ")

	_, err := ReadBIFBytes(raw)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestBIF_GenerateKeySelfValidates(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)
	key := bif.GenerateKey(`data\templates.bif`, nil)

	if problems := bif.ValidateWithKey(key, 0); len(problems) != 0 {
		t.Fatalf("self-generated KEY must validate clean, got %v", problems)
	}

	// KEY round trip keeps the cross-references intact.
	raw, err := key.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := ReadKEYBytes(raw)
	if err != nil {
		t.Fatalf("ReadKEYBytes: %v", err)
	}
	if problems := bif.ValidateWithKey(decoded, 0); len(problems) != 0 {
		t.Fatalf("decoded KEY must still validate clean, got %v", problems)
	}

	files := decoded.Files()
	if len(files) != 1 || files[0].Filename != `data\templates.bif` {
		t.Fatalf("file table = %+v", files)
	}
}

func TestBIF_ValidateReportsDeletedResource(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)
	key := bif.GenerateKey("templates.bif", nil)

	// Drop one resource out of the BIF; exactly one problem must name it.
	resources := bif.Resources()
	dropped := resources[1]
	bif.resources = append(bif.resources[:1], bif.resources[2:]...)
	bif.rebuildIndex()

	problems := bif.ValidateWithKey(key, 0)
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly one", problems)
	}
	if !strings.Contains(problems[0], "not found in BIF") {
		t.Errorf("problem text = %q", problems[0])
	}
	if !strings.Contains(problems[0], dropped.ResRef.key()) {
		t.Errorf("problem %q does not name %q", problems[0], dropped.ResRef)
	}
}

func TestBIF_ValidateReportsUnindexedResource(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)
	key := bif.GenerateKey("templates.bif", nil)

	if _, err := bif.Add("straggler", TypeUTI, []byte("new item")); err != nil {
		t.Fatal(err)
	}

	problems := bif.ValidateWithKey(key, 0)
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly one", problems)
	}
	if !strings.Contains(problems[0], "missing from KEY") {
		t.Errorf("problem text = %q", problems[0])
	}
}

func TestBIF_SynchronizeWithKeyOverwritesNames(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)
	key := bif.GenerateKey("templates.bif", nil)

	// Forget all names, as a freshly read BIF would have them.
	for i := range bif.resources {
		bif.resources[i].ResRef = ""
	}

	bif.SynchronizeWithKey(key, 0)

	for _, res := range bif.Resources() {
		entry, ok := key.EntryByID(compositeResourceID(0, res.ID))
		if !ok {
			t.Fatalf("no KEY entry for id %d", res.ID)
		}
		if !res.ResRef.Equal(entry.ResRef) {
			t.Errorf("id %d resref = %q, want %q", res.ID, res.ResRef, entry.ResRef)
		}
	}
}

func TestBIF_SynchronizeSkipsUnknownIDs(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)
	key := NewKEY()
	key.AddFile("templates.bif", 0)
	key.AddEntry(KeyEntry{ResRef: "renamed", Type: TypeUTC, ResourceID: compositeResourceID(0, 0)})

	bif.SynchronizeWithKey(key, 0)

	res, _ := bif.ResourceByID(0)
	if res.ResRef != "renamed" {
		t.Errorf("id 0 resref = %q, want renamed", res.ResRef)
	}

	// Entries 1 and 2 have no KEY counterpart and keep their names.
	res, _ = bif.ResourceByID(1)
	if res.ResRef != "plc_crate" {
		t.Errorf("id 1 resref = %q, want plc_crate", res.ResRef)
	}
}

func TestBIF_ApplyKeyCollectsProblems(t *testing.T) {
	bif := buildTestBIF(t, BIFFormatPlain)

	key := NewKEY()
	key.AddFile("templates.bif", 0)
	key.AddEntry(KeyEntry{ResRef: "n_gendroid", Type: TypeUTD, ResourceID: compositeResourceID(0, 0)})
	key.AddEntry(KeyEntry{ResRef: "ghost", Type: TypeUTC, ResourceID: compositeResourceID(0, 99)})

	problems := bif.ApplyKey(key, 0)
	if len(problems) != 2 {
		t.Fatalf("problems = %v, want two", problems)
	}

	var mismatches, missing int
	for _, p := range problems {
		switch {
		case strings.Contains(p, "type mismatch"):
			mismatches++
		case strings.Contains(p, "not found in BIF"):
			missing++
		}
	}
	if mismatches != 1 || missing != 1 {
		t.Fatalf("problem kinds = %v", problems)
	}

	// Names still applied despite the type mismatch diagnostic.
	res, _ := bif.ResourceByID(0)
	if res.ResRef != "n_gendroid" {
		t.Errorf("id 0 resref = %q", res.ResRef)
	}
}

func TestKeyEntry_CompositeID(t *testing.T) {
	entry := KeyEntry{ResourceID: compositeResourceID(3, 1234)}
	if entry.BIFIndex() != 3 {
		t.Errorf("BIFIndex = %d, want 3", entry.BIFIndex())
	}
	if entry.LocalIndex() != 1234 {
		t.Errorf("LocalIndex = %d, want 1234", entry.LocalIndex())
	}
}

func TestKEY_AddFileDeduplicates(t *testing.T) {
	key := NewKEY()
	a := key.AddFile("data\\a.bif", 10)
	b := key.AddFile("DATA\\A.BIF", 20)
	c := key.AddFile("data\\b.bif", 30)

	if a != b {
		t.Errorf("same filename produced indices %d and %d", a, b)
	}
	if c == a {
		t.Error("distinct filenames must get distinct indices")
	}
}

func TestReadKEY_BadMagic(t *testing.T) {
	raw := make([]byte, keyHeaderSize)
	copy(raw, "LOCKV1  ")

	_, err := ReadKEYBytes(raw)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestKEY_RoundTripMultipleBIFs(t *testing.T) {
	key := NewKEY()
	first := key.AddFile("data\\one.bif", 111)
	second := key.AddFile("data\\two.bif", 222)
	key.AddEntry(KeyEntry{ResRef: "alpha", Type: TypeUTC, ResourceID: compositeResourceID(first, 0)})
	key.AddEntry(KeyEntry{ResRef: "beta", Type: TypeDLG, ResourceID: compositeResourceID(second, 0)})
	key.AddEntry(KeyEntry{ResRef: "gamma", Type: TypeNCS, ResourceID: compositeResourceID(second, 1)})

	raw, err := key.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	decoded, err := ReadKEYBytes(raw)
	if err != nil {
		t.Fatalf("ReadKEYBytes: %v", err)
	}

	files := decoded.Files()
	if len(files) != 2 || files[0].Filename != "data\\one.bif" || files[1].Filename != "data\\two.bif" {
		t.Fatalf("file table = %+v", files)
	}
	if files[1].FileSize != 222 {
		t.Errorf("file size = %d, want 222", files[1].FileSize)
	}

	if got := decoded.EntriesForBIF(second); len(got) != 2 {
		t.Fatalf("EntriesForBIF(second) = %+v, want two entries", got)
	}

	entry, ok := decoded.EntryByID(compositeResourceID(first, 0))
	if !ok || entry.ResRef != "alpha" || entry.Type.ID != TypeUTC.ID {
		t.Fatalf("EntryByID = %+v, ok=%v", entry, ok)
	}
}
