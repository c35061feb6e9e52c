package graph

import (
	"encoding/json"
	"io"
)

// StructureKind tells a top-level class from a top-level function.
type StructureKind string

const (
	StructureClass    StructureKind = "class"
	StructureFunction StructureKind = "function"
)

// FileStructure outlines one file: the modules it imports and its top-level
// classes and functions with the calls made in each body.
type FileStructure struct {
	Filename   string      `json:"filename"`
	Imports    []string    `json:"imports"`
	Structures []Structure `json:"structures"`
}

// Structure is a top-level class or function. Classes carry Methods,
// functions carry Calls.
type Structure struct {
	Type    StructureKind
	Name    string
	Methods []Method
	Calls   []string
}

// Method is a function defined directly in a class body.
type Method struct {
	Name  string   `json:"name"`
	Calls []string `json:"calls"`
}

type classJSON struct {
	Type    StructureKind `json:"type"`
	Name    string        `json:"name"`
	Methods []Method      `json:"methods"`
}

type functionJSON struct {
	Type  StructureKind `json:"type"`
	Name  string        `json:"name"`
	Calls []string      `json:"calls"`
}

// MarshalJSON writes "methods" for a class and "calls" for a function,
// always as arrays.
func (s Structure) MarshalJSON() ([]byte, error) {
	if s.Type == StructureClass {
		methods := make([]Method, len(s.Methods))
		for i, m := range s.Methods {
			methods[i] = Method{Name: m.Name, Calls: orEmpty(m.Calls)}
		}
		return json.Marshal(classJSON{Type: s.Type, Name: s.Name, Methods: methods})
	}
	return json.Marshal(functionJSON{Type: s.Type, Name: s.Name, Calls: orEmpty(s.Calls)})
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// WriteStructures writes the per-file outlines of snap as one indented JSON
// array ordered by filename.
func WriteStructures(w io.Writer, snap *Snapshot) error {
	out := make([]FileStructure, len(snap.Structures))
	for i, fs := range snap.Structures {
		out[i] = FileStructure{Filename: fs.Filename, Imports: orEmpty(fs.Imports), Structures: fs.Structures}
		if out[i].Structures == nil {
			out[i].Structures = []Structure{}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
