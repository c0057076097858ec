package assembly

import (
	"fmt"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Metadata table numbers (ECMA-335 II.22).
const (
	tModule                 = 0x00
	tTypeRef                = 0x01
	tTypeDef                = 0x02
	tFieldPtr               = 0x03
	tField                  = 0x04
	tMethodPtr              = 0x05
	tMethodDef              = 0x06
	tParamPtr               = 0x07
	tParam                  = 0x08
	tInterfaceImpl          = 0x09
	tMemberRef              = 0x0A
	tConstant               = 0x0B
	tCustomAttribute        = 0x0C
	tFieldMarshal           = 0x0D
	tDeclSecurity           = 0x0E
	tClassLayout            = 0x0F
	tFieldLayout            = 0x10
	tStandAloneSig          = 0x11
	tEventMap               = 0x12
	tEventPtr               = 0x13
	tEvent                  = 0x14
	tPropertyMap            = 0x15
	tPropertyPtr            = 0x16
	tProperty               = 0x17
	tMethodSemantics        = 0x18
	tMethodImpl             = 0x19
	tModuleRef              = 0x1A
	tTypeSpec               = 0x1B
	tImplMap                = 0x1C
	tFieldRVA               = 0x1D
	tEncLog                 = 0x1E
	tEncMap                 = 0x1F
	tAssembly               = 0x20
	tAssemblyRef            = 0x23
	tFile                   = 0x26
	tExportedType           = 0x27
	tManifestResource       = 0x28
	tGenericParam           = 0x2A
	tMethodSpec             = 0x2B
	tGenericParamConstraint = 0x2C
)

// HeapSizes flags of the table stream header.
const (
	heapStrings4 = 0x01
	heapGUID4    = 0x02
	heapBlob4    = 0x04
	heapExtra    = 0x40
)

type tableLayout struct {
	rows                [64]uint32
	str, guid, blob     int
	typeDefOrRef        int
	resolutionScope     int
	memberRefParent     int
	hasConstant         int
	hasCustomAttribute  int
	customAttributeType int
	hasFieldMarshal     int
	hasDeclSecurity     int
	hasSemantics        int
	methodDefOrRef      int
	memberForwarded     int
}

func (l *tableLayout) index(table int) int {
	if l.rows[table] < 1<<16 {
		return 2
	}
	return 4
}

// coded returns the width of a coded index whose tag takes bits bits.
func (l *tableLayout) coded(bits int, tables ...int) int {
	var most uint32
	for _, t := range tables {
		most = max(most, l.rows[t])
	}
	if most < 1<<(16-bits) {
		return 2
	}
	return 4
}

func newLayout(heapSizes byte, rows [64]uint32) *tableLayout {
	l := &tableLayout{rows: rows, str: 2, guid: 2, blob: 2}
	if heapSizes&heapStrings4 != 0 {
		l.str = 4
	}
	if heapSizes&heapGUID4 != 0 {
		l.guid = 4
	}
	if heapSizes&heapBlob4 != 0 {
		l.blob = 4
	}
	l.typeDefOrRef = l.coded(2, tTypeDef, tTypeRef, tTypeSpec)
	l.resolutionScope = l.coded(2, tModule, tModuleRef, tAssemblyRef, tTypeRef)
	l.memberRefParent = l.coded(3, tTypeDef, tTypeRef, tModuleRef, tMethodDef, tTypeSpec)
	l.hasConstant = l.coded(2, tField, tParam, tProperty)
	l.hasCustomAttribute = l.coded(5,
		tMethodDef, tField, tTypeRef, tTypeDef, tParam, tInterfaceImpl, tMemberRef,
		tModule, tDeclSecurity, tProperty, tEvent, tStandAloneSig, tModuleRef,
		tTypeSpec, tAssembly, tAssemblyRef, tFile, tExportedType, tManifestResource,
		tGenericParam, tGenericParamConstraint, tMethodSpec)
	l.customAttributeType = l.coded(3, tMethodDef, tMemberRef)
	l.hasFieldMarshal = l.coded(1, tField, tParam)
	l.hasDeclSecurity = l.coded(2, tTypeDef, tMethodDef, tAssembly)
	l.hasSemantics = l.coded(1, tEvent, tProperty)
	l.methodDefOrRef = l.coded(1, tMethodDef, tMemberRef)
	l.memberForwarded = l.coded(1, tField, tMethodDef)
	return l
}

// rowSize returns the row width of the tables that precede Assembly.
func (l *tableLayout) rowSize(table int) (int, error) {
	s, g, b := l.str, l.guid, l.blob
	switch table {
	case tModule:
		return 2 + s + 3*g, nil
	case tTypeRef:
		return l.resolutionScope + 2*s, nil
	case tTypeDef:
		return 4 + 2*s + l.typeDefOrRef + l.index(tField) + l.index(tMethodDef), nil
	case tFieldPtr:
		return l.index(tField), nil
	case tField:
		return 2 + s + b, nil
	case tMethodPtr:
		return l.index(tMethodDef), nil
	case tMethodDef:
		return 8 + s + b + l.index(tParam), nil
	case tParamPtr:
		return l.index(tParam), nil
	case tParam:
		return 4 + s, nil
	case tInterfaceImpl:
		return l.index(tTypeDef) + l.typeDefOrRef, nil
	case tMemberRef:
		return l.memberRefParent + s + b, nil
	case tConstant:
		return 2 + l.hasConstant + b, nil
	case tCustomAttribute:
		return l.hasCustomAttribute + l.customAttributeType + b, nil
	case tFieldMarshal:
		return l.hasFieldMarshal + b, nil
	case tDeclSecurity:
		return 2 + l.hasDeclSecurity + b, nil
	case tClassLayout:
		return 6 + l.index(tTypeDef), nil
	case tFieldLayout:
		return 4 + l.index(tField), nil
	case tStandAloneSig:
		return b, nil
	case tEventMap:
		return l.index(tTypeDef) + l.index(tEvent), nil
	case tEventPtr:
		return l.index(tEvent), nil
	case tEvent:
		return 2 + s + l.typeDefOrRef, nil
	case tPropertyMap:
		return l.index(tTypeDef) + l.index(tProperty), nil
	case tPropertyPtr:
		return l.index(tProperty), nil
	case tProperty:
		return 2 + s + b, nil
	case tMethodSemantics:
		return 2 + l.index(tMethodDef) + l.hasSemantics, nil
	case tMethodImpl:
		return l.index(tTypeDef) + 2*l.methodDefOrRef, nil
	case tModuleRef:
		return s, nil
	case tTypeSpec:
		return b, nil
	case tImplMap:
		return 2 + l.memberForwarded + s + l.index(tModuleRef), nil
	case tFieldRVA:
		return 4 + l.index(tField), nil
	case tEncLog:
		return 8, nil
	case tEncMap:
		return 4, nil
	}
	return 0, &FormatError{Msg: fmt.Sprintf("no row size for table %#x", table)}
}

// readAssemblyRow decodes the first Assembly table row from the table stream.
func readAssemblyRow(t, strs []byte) (*Info, error) {
	if len(t) < 24 {
		return nil, &FormatError{Msg: "truncated table stream"}
	}
	heapSizes := t[6]
	valid := le.Uint64(t[8:])

	var rows [64]uint32
	off := 24
	for i := range 64 {
		if valid&(1<<i) == 0 {
			continue
		}
		if off+4 > len(t) {
			return nil, &FormatError{Msg: "truncated row counts"}
		}
		rows[i] = le.Uint32(t[off:])
		off += 4
	}
	if heapSizes&heapExtra != 0 {
		off += 4
	}
	if rows[tAssembly] == 0 {
		return nil, ErrNoAssemblyRow
	}

	l := newLayout(heapSizes, rows)
	for table := tModule; table < tAssembly; table++ {
		if rows[table] == 0 {
			continue
		}
		size, err := l.rowSize(table)
		if err != nil {
			return nil, err
		}
		off += int(rows[table]) * size
	}

	// HashAlgId, version, Flags, PublicKey, Name, Culture.
	size := 4 + 8 + 4 + l.blob + 2*l.str
	if off+size > len(t) {
		return nil, &FormatError{Msg: "truncated assembly table"}
	}
	row := t[off : off+size]
	v := version.AssemblyFromParts(le.Uint16(row[4:]), le.Uint16(row[6:]), le.Uint16(row[8:]), le.Uint16(row[10:]))

	pos := 16 + l.blob
	name, err := readString(strs, heapIndex(row[pos:], l.str))
	if err != nil {
		return nil, err
	}
	culture, err := readString(strs, heapIndex(row[pos+l.str:], l.str))
	if err != nil {
		return nil, err
	}
	return &Info{Name: name, Version: v, Culture: culture}, nil
}

func heapIndex(b []byte, width int) uint32 {
	if width == 4 {
		return le.Uint32(b)
	}
	return uint32(le.Uint16(b))
}
