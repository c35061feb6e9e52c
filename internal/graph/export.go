package graph

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format is an export encoding.
type Format string

const (
	FormatDOT        Format = "dot"
	FormatJSON       Format = "json"
	FormatJSONL      Format = "jsonl"
	FormatStructures Format = "structures"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatDOT, FormatJSON, FormatJSONL, FormatStructures}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q (want one of dot, json, jsonl, structures)", s)
}

// Extension returns the conventional file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON, FormatStructures:
		return ".json"
	case FormatJSONL:
		return ".jsonl"
	default:
		return ".dot"
	}
}

// Export writes snap to w in the given format.
func Export(w io.Writer, snap *Snapshot, format Format) error {
	switch format {
	case FormatDOT:
		return WriteDOT(w, snap)
	case FormatJSON:
		return WriteJSON(w, snap)
	case FormatJSONL:
		return WriteJSONL(w, snap)
	case FormatStructures:
		return WriteStructures(w, snap)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteDOT renders snap as a Graphviz digraph with one cluster for file
// imports and one for function calls. Function nodes are labelled by local
// name only, so same-named functions share a node; ambiguous calls are dashed.
func WriteDOT(w io.Writer, snap *Snapshot) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format, args...) }

	p("digraph CodeGraph {\n")
	p("  rankdir=LR;\n")
	p("  node [shape=box];\n")

	p("  subgraph cluster_files {\n")
	p("    label = %s;\n", dotQuote("File Dependencies"))
	for _, f := range snap.Files {
		p("    %s;\n", dotQuote(f))
	}
	for _, e := range snap.FileEdges {
		p("    %s -> %s;\n", dotQuote(e.Source), dotQuote(e.Target))
	}
	p("  }\n")

	p("  subgraph cluster_functions {\n")
	p("    label = %s;\n", dotQuote("Function Dependencies"))
	declared := make(map[string]struct{}, len(snap.Functions))
	for _, fn := range snap.Functions {
		name := fn.Key.LocalName()
		if _, ok := declared[name]; ok {
			continue
		}
		declared[name] = struct{}{}
		p("    %s [label=%s];\n", dotQuote(name), dotQuote(name))
	}
	drawn := make(map[[2]string]struct{}, len(snap.CallEdges))
	for _, e := range snap.CallEdges {
		pair := [2]string{e.Source.LocalName(), e.Target.LocalName()}
		if _, ok := drawn[pair]; ok {
			continue
		}
		drawn[pair] = struct{}{}
		if e.Ambiguous() {
			p("    %s -> %s [style=dashed];\n", dotQuote(pair[0]), dotQuote(pair[1]))
		} else {
			p("    %s -> %s;\n", dotQuote(pair[0]), dotQuote(pair[1]))
		}
	}
	p("  }\n")
	p("}\n")
	return bw.Flush()
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// WriteJSON writes snap as a single indented JSON document.
func WriteJSON(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.normalized())
}

// Record kinds used by the JSON-lines format.
const (
	RecordFile     = "file"
	RecordFunction = "function"
	RecordFileEdge = "file_edge"
	RecordCallEdge = "call_edge"
)

// exportRecord is one line of the JSON-lines format.
type exportRecord struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

type fileRecord struct {
	Path string `json:"path"`
}

// WriteJSONL writes one record per entity and edge: files, functions, file
// edges, then call edges.
func WriteJSONL(w io.Writer, snap *Snapshot) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range snap.Files {
		if err := enc.Encode(exportRecord{Kind: RecordFile, Data: fileRecord{Path: f}}); err != nil {
			return fmt.Errorf("encode file: %w", err)
		}
	}
	for _, fn := range snap.Functions {
		if err := enc.Encode(exportRecord{Kind: RecordFunction, Data: fn}); err != nil {
			return fmt.Errorf("encode function: %w", err)
		}
	}
	for _, e := range snap.FileEdges {
		if err := enc.Encode(exportRecord{Kind: RecordFileEdge, Data: e}); err != nil {
			return fmt.Errorf("encode file edge: %w", err)
		}
	}
	for _, e := range snap.CallEdges {
		if err := enc.Encode(exportRecord{Kind: RecordCallEdge, Data: e}); err != nil {
			return fmt.Errorf("encode call edge: %w", err)
		}
	}
	return bw.Flush()
}

// normalized returns a copy with nil slices replaced by empty ones so JSON
// output always carries arrays.
func (s *Snapshot) normalized() *Snapshot {
	out := *s
	if out.Files == nil {
		out.Files = []string{}
	}
	if out.Functions == nil {
		out.Functions = []Function{}
	}
	if out.FileEdges == nil {
		out.FileEdges = []FileEdge{}
	}
	if out.CallEdges == nil {
		out.CallEdges = []CallEdge{}
	}
	if out.Errors == nil {
		out.Errors = []FileProblem{}
	}
	return &out
}
