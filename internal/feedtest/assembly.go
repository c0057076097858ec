package feedtest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"strconv"
	"strings"
)

const (
	textRVA    = 0x2000
	fileAlign  = 0x200
	cliHdrSize = 72
)

// Assembly returns a minimal managed PE image whose manifest declares name
// and a four-part version such as "4.0.1.0". The metadata carries a Module
// and a TypeDef row ahead of the Assembly row.
func Assembly(name, ver string) string {
	var parts [4]uint16
	for i, p := range strings.SplitN(ver, ".", 4) {
		n, _ := strconv.ParseUint(p, 10, 16)
		parts[i] = uint16(n)
	}

	md := metadata(name, parts)
	var text bytes.Buffer
	cli := struct {
		Cb                  uint32
		MajorRuntimeVersion uint16
		MinorRuntimeVersion uint16
		MetaData            pe.DataDirectory
		Flags               uint32
		EntryPoint          uint32
		Rest                [6]pe.DataDirectory
	}{
		Cb:                  cliHdrSize,
		MajorRuntimeVersion: 2,
		MinorRuntimeVersion: 5,
		MetaData:            pe.DataDirectory{VirtualAddress: textRVA + cliHdrSize, Size: uint32(len(md))},
		Flags:               1,
	}
	write(&text, cli)
	text.Write(md)
	rawSize := align(text.Len(), fileAlign)

	var out bytes.Buffer
	dos := make([]byte, 0x40)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	out.Write(dos)
	out.WriteString("PE\x00\x00")

	write(&out, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 224,
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE | pe.IMAGE_FILE_DLL,
	})
	oh := pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            uint32(rawSize),
		BaseOfCode:            textRVA,
		ImageBase:             0x10000000,
		SectionAlignment:      textRVA,
		FileAlignment:         fileAlign,
		MajorSubsystemVersion: 4,
		SizeOfImage:           textRVA * 2,
		SizeOfHeaders:         fileAlign,
		Subsystem:             pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		NumberOfRvaAndSizes:   16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR] = pe.DataDirectory{VirtualAddress: textRVA, Size: cliHdrSize}
	write(&out, oh)

	write(&out, pe.SectionHeader32{
		Name:             [8]uint8{'.', 't', 'e', 'x', 't'},
		VirtualSize:      uint32(text.Len()),
		VirtualAddress:   textRVA,
		SizeOfRawData:    uint32(rawSize),
		PointerToRawData: fileAlign,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	})
	out.Write(make([]byte, fileAlign-out.Len()))
	out.Write(text.Bytes())
	out.Write(make([]byte, rawSize-text.Len()))
	return out.String()
}

func metadata(name string, v [4]uint16) []byte {
	strs := append([]byte{0}, name...)
	strs = append(strs, 0)
	strs = pad(strs)

	var tables bytes.Buffer
	write(&tables, struct {
		Reserved  uint32
		Major     uint8
		Minor     uint8
		HeapSizes uint8
		Reserved2 uint8
		Valid     uint64
		Sorted    uint64
	}{Major: 2, Reserved2: 1, Valid: 1<<0x00 | 1<<0x02 | 1<<0x20})
	write(&tables, [3]uint32{1, 1, 1}) // Module, TypeDef, Assembly
	tables.Write(make([]byte, 10))     // Module row
	tables.Write(make([]byte, 14))     // TypeDef row
	write(&tables, struct {
		HashAlgID uint32
		Version   [4]uint16
		Flags     uint32
		PublicKey uint16
		Name      uint16
		Culture   uint16
	}{HashAlgID: 0x8004, Version: v, Name: 1})
	tablesData := pad(tables.Bytes())

	const runtime = "v4.0.30319\x00\x00"
	headerSize := 16 + len(runtime) + 4 + (8 + 4) + (8 + 12)

	var md bytes.Buffer
	write(&md, struct {
		Signature uint32
		Major     uint16
		Minor     uint16
		Reserved  uint32
		Length    uint32
	}{Signature: 0x424A5342, Major: 1, Minor: 1, Length: uint32(len(runtime))})
	md.WriteString(runtime)
	write(&md, [2]uint16{0, 2})
	write(&md, [2]uint32{uint32(headerSize), uint32(len(tablesData))})
	md.WriteString("#~\x00\x00")
	write(&md, [2]uint32{uint32(headerSize + len(tablesData)), uint32(len(strs))})
	md.WriteString("#Strings\x00\x00\x00\x00")
	md.Write(tablesData)
	md.Write(strs)
	return md.Bytes()
}

func write(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

func pad(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}
