// Package assembly reads identity information from .NET assemblies.
//
// An assembly is a PE image whose CLI header points at ECMA-335 metadata.
// The PE image and metadata streams are parsed by saferwall/pe. When its
// table decoder leaves the Assembly table empty, the row is read from the
// table stream directly, skipping every table before it by computing its
// row size from the heap and table sizes.
//
// Reference: ECMA-335, Partition II, sections 24 and 25.
package assembly

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/saferwall/pe"
	pelog "github.com/saferwall/pe/log"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

var (
	// ErrNotManaged is returned for PE images without a CLI header.
	ErrNotManaged = errors.New("not a managed assembly")

	// ErrNoAssemblyRow is returned for modules that carry no Assembly table
	// row (.netmodule files).
	ErrNoAssemblyRow = errors.New("no assembly manifest")
)

// FormatError reports malformed metadata.
type FormatError struct {
	Path string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "assembly: " + e.Msg
	}
	return "assembly " + e.Path + ": " + e.Msg
}

// Info is the identity recorded in an assembly manifest.
type Info struct {
	Name    string
	Version version.Assembly
	Culture string
}

// ReadFile reads the assembly identity of the file at path.
func ReadFile(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := Read(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	return info, nil
}

// Version returns the assembly version of the file at path.
func Version(path string) (version.Assembly, error) {
	info, err := ReadFile(path)
	if err != nil {
		return version.Assembly{}, err
	}
	return info.Version, nil
}

var options = pe.Options{Logger: pelog.NewStdLogger(io.Discard)}

// Read decodes the assembly identity from a PE image.
func Read(data []byte) (*Info, error) {
	f, err := pe.NewBytes(data, &options)
	if err != nil {
		return nil, &FormatError{Msg: err.Error()}
	}
	// Close is not called: it unmaps, and data was never mapped.
	if err := f.Parse(); err != nil {
		return nil, &FormatError{Msg: err.Error()}
	}
	if !f.HasCLR {
		return nil, ErrNotManaged
	}

	strs := f.CLR.MetadataStreams["#Strings"]
	if t := f.CLR.MetadataTables[tAssembly]; t != nil {
		if rows, ok := t.Content.([]pe.AssemblyTableRow); ok && len(rows) > 0 {
			return fromRow(rows[0], strs)
		}
	}

	// Uncompressed (#-) and unusual table streams are decoded locally.
	tables, ok := f.CLR.MetadataStreams["#~"]
	if !ok {
		tables, ok = f.CLR.MetadataStreams["#-"]
	}
	if !ok {
		return nil, &FormatError{Msg: "metadata has no table stream"}
	}
	return readAssemblyRow(tables, strs)
}

func fromRow(row pe.AssemblyTableRow, strs []byte) (*Info, error) {
	name, err := readString(strs, row.Name)
	if err != nil {
		return nil, err
	}
	culture, err := readString(strs, row.Culture)
	if err != nil {
		return nil, err
	}
	return &Info{
		Name:    name,
		Version: version.AssemblyFromParts(row.MajorVersion, row.MinorVersion, row.BuildNumber, row.RevisionNumber),
		Culture: culture,
	}, nil
}

var le = binary.LittleEndian

func readString(heap []byte, idx uint32) (string, error) {
	if int(idx) >= len(heap) {
		if idx == 0 {
			return "", nil
		}
		return "", &FormatError{Msg: fmt.Sprintf("string index %d out of range", idx)}
	}
	s := heap[idx:]
	if nul := bytes.IndexByte(s, 0); nul >= 0 {
		s = s[:nul]
	}
	return string(s), nil
}
