// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"strconv"
	"strings"
)

// ResourceType identifies one resource file kind by extension and by the
// legacy numeric type id stored inside container tables. The numeric id is
// stable across game installs; one extension maps to at most one type.
type ResourceType struct {
	// Extension is the lower-case file extension without the dot.
	Extension string
	// Category is a coarse human-readable group used by listing tools.
	Category string
	// ID is the legacy numeric type id written into container tables.
	ID uint32
}

// TypeInvalid is the placeholder type stored in padded or empty table slots.
var TypeInvalid = ResourceType{Extension: "", Category: "Undefined", ID: 0xFFFF}

// Known resource types, ordered by legacy numeric id.
var (
	TypeRES = ResourceType{"res", "Save Data", 0}
	TypeBMP = ResourceType{"bmp", "Images", 1}
	TypeTGA = ResourceType{"tga", "Textures", 3}
	TypeWAV = ResourceType{"wav", "Audio", 4}
	TypePLT = ResourceType{"plt", "Other", 6}
	TypeINI = ResourceType{"ini", "Text Files", 7}
	TypeTXT = ResourceType{"txt", "Text Files", 10}
	TypeMDL = ResourceType{"mdl", "Models", 2002}
	TypeNSS = ResourceType{"nss", "Scripts", 2009}
	TypeNCS = ResourceType{"ncs", "Scripts", 2010}
	TypeMOD = ResourceType{"mod", "Modules", 2011}
	TypeARE = ResourceType{"are", "Module Data", 2012}
	TypeSET = ResourceType{"set", "Unused", 2013}
	TypeIFO = ResourceType{"ifo", "Module Data", 2014}
	TypeBIC = ResourceType{"bic", "Creatures", 2015}
	TypeWOK = ResourceType{"wok", "Walkmeshes", 2016}
	Type2DA = ResourceType{"2da", "2D Arrays", 2017}
	TypeTLK = ResourceType{"tlk", "Talk Tables", 2018}
	TypeTXI = ResourceType{"txi", "Textures", 2022}
	TypeGIT = ResourceType{"git", "Module Data", 2023}
	TypeBTI = ResourceType{"bti", "Items", 2024}
	TypeUTI = ResourceType{"uti", "Items", 2025}
	TypeBTC = ResourceType{"btc", "Creatures", 2026}
	TypeUTC = ResourceType{"utc", "Creatures", 2027}
	TypeDLG = ResourceType{"dlg", "Dialogs", 2029}
	TypeITP = ResourceType{"itp", "Palettes", 2030}
	TypeUTT = ResourceType{"utt", "Triggers", 2032}
	TypeDDS = ResourceType{"dds", "Textures", 2033}
	TypeUTS = ResourceType{"uts", "Sounds", 2035}
	TypeLTR = ResourceType{"ltr", "Other", 2036}
	TypeGFF = ResourceType{"gff", "Other", 2037}
	TypeFAC = ResourceType{"fac", "Factions", 2038}
	TypeUTE = ResourceType{"ute", "Encounters", 2040}
	TypeUTD = ResourceType{"utd", "Doors", 2042}
	TypeUTP = ResourceType{"utp", "Placeables", 2044}
	TypeDFT = ResourceType{"dft", "Other", 2045}
	TypeGIC = ResourceType{"gic", "Module Data", 2046}
	TypeGUI = ResourceType{"gui", "GUIs", 2047}
	TypeUTM = ResourceType{"utm", "Merchants", 2051}
	TypeDWK = ResourceType{"dwk", "Walkmeshes", 2052}
	TypePWK = ResourceType{"pwk", "Walkmeshes", 2053}
	TypeJRL = ResourceType{"jrl", "Journals", 2056}
	TypeSAV = ResourceType{"sav", "Save Data", 2057}
	TypeUTW = ResourceType{"utw", "Waypoints", 2058}
	TypeSSF = ResourceType{"ssf", "Soundsets", 2060}
	TypeNDB = ResourceType{"ndb", "Other", 2064}
	TypePTM = ResourceType{"ptm", "Other", 2065}
	TypePTT = ResourceType{"ptt", "Other", 2066}
	TypeLYT = ResourceType{"lyt", "Module Data", 3000}
	TypeVIS = ResourceType{"vis", "Module Data", 3001}
	TypeRIM = ResourceType{"rim", "Modules", 3002}
	TypePTH = ResourceType{"pth", "Paths", 3003}
	TypeLIP = ResourceType{"lip", "Lips", 3004}
	TypeTPC = ResourceType{"tpc", "Textures", 3007}
	TypeMDX = ResourceType{"mdx", "Models", 3008}
	TypeERF = ResourceType{"erf", "Modules", 9997}
	TypeBIF = ResourceType{"bif", "Archives", 9998}
	TypeKEY = ResourceType{"key", "Archives", 9999}
)

// resourceTypes is the canonical ordered type list the lookup maps derive from.
var resourceTypes = []ResourceType{
	TypeRES, TypeBMP, TypeTGA, TypeWAV, TypePLT, TypeINI, TypeTXT,
	TypeMDL, TypeNSS, TypeNCS, TypeMOD, TypeARE, TypeSET, TypeIFO,
	TypeBIC, TypeWOK, Type2DA, TypeTLK, TypeTXI, TypeGIT, TypeBTI,
	TypeUTI, TypeBTC, TypeUTC, TypeDLG, TypeITP, TypeUTT, TypeDDS,
	TypeUTS, TypeLTR, TypeGFF, TypeFAC, TypeUTE, TypeUTD, TypeUTP,
	TypeDFT, TypeGIC, TypeGUI, TypeUTM, TypeDWK, TypePWK, TypeJRL,
	TypeSAV, TypeUTW, TypeSSF, TypeNDB, TypePTM, TypePTT, TypeLYT,
	TypeVIS, TypeRIM, TypePTH, TypeLIP, TypeTPC, TypeMDX, TypeERF,
	TypeBIF, TypeKEY,
}

var (
	typesByID  = buildTypesByID()
	typesByExt = buildTypesByExt()
)

// buildTypesByID derives the id lookup from the canonical type list.
func buildTypesByID() map[uint32]ResourceType {
	m := make(map[uint32]ResourceType, len(resourceTypes))
	for _, t := range resourceTypes {
		m[t.ID] = t
	}

	return m
}

// buildTypesByExt derives the extension lookup from the canonical type list.
func buildTypesByExt() map[string]ResourceType {
	m := make(map[string]ResourceType, len(resourceTypes))
	for _, t := range resourceTypes {
		m[t.Extension] = t
	}

	return m
}

// TypeFromExtension resolves a resource type from a file extension.
// The extension is matched case-insensitively, with or without leading dot.
func TypeFromExtension(ext string) (ResourceType, bool) {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	t, ok := typesByExt[normalized]
	return t, ok
}

// TypeFromID resolves a resource type from its legacy numeric id. Unknown ids
// yield a synthetic undefined type that preserves the id, so containers with
// unrecognized entries still round-trip byte-exactly.
func TypeFromID(id uint32) ResourceType {
	if t, ok := typesByID[id]; ok {
		return t
	}

	return ResourceType{Extension: "", Category: "Undefined", ID: id}
}

// IsValid reports whether this type is a known, non-placeholder type.
func (t ResourceType) IsValid() bool {
	_, ok := typesByID[t.ID]
	return ok && t.ID != TypeInvalid.ID
}

// IsCapsuleType reports whether resources of this type are themselves
// ERF-family or RIM containers.
func (t ResourceType) IsCapsuleType() bool {
	switch t.ID {
	case TypeERF.ID, TypeMOD.ID, TypeSAV.ID, TypeRIM.ID:
		return true
	default:
		return false
	}
}

// key returns the case-folded map key form for this type.
func (t ResourceType) key() string {
	if t.Extension != "" {
		return strings.ToLower(t.Extension)
	}

	// Unknown types key by numeric id to stay unique.
	return "#" + strconv.FormatUint(uint64(t.ID), 10)
}

// String returns the lower-case extension, or #id for unknown types.
func (t ResourceType) String() string {
	return t.key()
}
