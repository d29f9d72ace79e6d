package aurora

import (
	"errors"
	"testing"
)

func TestNewResRef_Valid(t *testing.T) {
	for _, name := range []string{"a", "m13aa", "P_BastilaBB", "sixteen_chars_ok"} {
		if _, err := NewResRef(name); err != nil {
			t.Errorf("NewResRef(%q): %v", name, err)
		}
	}
}

func TestNewResRef_Invalid(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"seventeen_chars_x",
		"dir/name",
		`dir\name`,
		"name.utc",
		"nul\x00byte",
	}

	for _, name := range cases {
		_, err := NewResRef(name)
		if err == nil {
			t.Errorf("NewResRef(%q): expected error", name)
			continue
		}
		if !errors.Is(err, ErrInvalidResRef) {
			t.Errorf("NewResRef(%q): expected ErrInvalidResRef, got %v", name, err)
		}
	}
}

func TestResRef_EqualFoldsCase(t *testing.T) {
	if !ResRef("Bastila").Equal(ResRef("bastila")) {
		t.Fatal("resref equality must fold case")
	}
	if ResRef("bastila").Equal(ResRef("carth")) {
		t.Fatal("distinct resrefs must not compare equal")
	}
}

func TestResourceIdentifier_KeyFoldsCase(t *testing.T) {
	a := ResourceIdentifier{ResRef: "M13AA", Type: TypeARE}
	b := ResourceIdentifier{ResRef: "m13aa", Type: TypeARE}

	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	if !a.Equal(b) {
		t.Fatal("identifiers differing only in case must be equal")
	}

	c := ResourceIdentifier{ResRef: "m13aa", Type: TypeGIT}
	if a.Equal(c) {
		t.Fatal("identifiers with different types must not be equal")
	}
}

func TestIdentifierFromFilename(t *testing.T) {
	id, err := IdentifierFromFilename("M13aa.ARE")
	if err != nil {
		t.Fatalf("IdentifierFromFilename: %v", err)
	}
	if id.ResRef != "M13aa" {
		t.Errorf("resref = %q, want M13aa", id.ResRef)
	}
	if id.Type.ID != TypeARE.ID {
		t.Errorf("type = %v, want ARE", id.Type)
	}

	if _, err := IdentifierFromFilename("noextension"); err == nil {
		t.Error("expected error for filename without extension")
	}
	if _, err := IdentifierFromFilename("file.zzz"); !errors.Is(err, ErrUnsupportedExtension) {
		t.Errorf("expected ErrUnsupportedExtension, got %v", err)
	}
}

func TestTypeFromExtension(t *testing.T) {
	cases := []struct {
		ext  string
		want ResourceType
	}{
		{"utc", TypeUTC},
		{".UTC", TypeUTC},
		{"MOD", TypeMOD},
		{"2da", Type2DA},
	}

	for _, tc := range cases {
		got, ok := TypeFromExtension(tc.ext)
		if !ok {
			t.Errorf("TypeFromExtension(%q): not found", tc.ext)
			continue
		}
		if got.ID != tc.want.ID {
			t.Errorf("TypeFromExtension(%q) = %v, want %v", tc.ext, got, tc.want)
		}
	}

	if _, ok := TypeFromExtension("nope"); ok {
		t.Error("unknown extension must not resolve")
	}
}

func TestTypeFromID_UnknownPreservesID(t *testing.T) {
	got := TypeFromID(31337)
	if got.ID != 31337 {
		t.Fatalf("unknown type id not preserved: %d", got.ID)
	}
	if got.IsValid() {
		t.Fatal("unknown type must not report valid")
	}
}

func TestResourceType_IsCapsuleType(t *testing.T) {
	for _, typ := range []ResourceType{TypeERF, TypeMOD, TypeSAV, TypeRIM} {
		if !typ.IsCapsuleType() {
			t.Errorf("%v must be a capsule type", typ)
		}
	}
	for _, typ := range []ResourceType{TypeUTC, TypeBIF, TypeKEY, TypeInvalid} {
		if typ.IsCapsuleType() {
			t.Errorf("%v must not be a capsule type", typ)
		}
	}
}
