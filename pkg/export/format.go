package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is an output encoding for a Document.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatDOT     Format = "dot"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatMsgpack, FormatDOT}

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (use text, json, msgpack or dot)", s)
}

// Binary reports whether the format is unsuitable for a terminal.
func (f Format) Binary() bool { return f == FormatMsgpack }

// Write encodes doc to w.
func Write(w io.Writer, f Format, doc *Document) error {
	switch f {
	case FormatText:
		return WriteText(w, doc)
	case FormatJSON:
		return WriteJSON(w, doc)
	case FormatMsgpack:
		return WriteMsgpack(w, doc)
	case FormatDOT:
		return WriteDOT(w, doc)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// WriteMsgpack writes doc as a single msgpack value.
func WriteMsgpack(w io.Writer, doc *Document) error {
	if err := msgpack.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encoding msgpack: %w", err)
	}
	return nil
}

// ReadMsgpack decodes a document written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (*Document, error) {
	var doc Document
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding msgpack: %w", err)
	}
	return &doc, nil
}

// WriteText lists each caller with its outgoing edges:
//
//	app.Main.run/0
//	  -> app.Worker.start/0  [unique_override]  Main.java:12
func WriteText(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	for _, n := range doc.Nodes {
		edges := doc.Outgoing(n.ID)
		if len(edges) == 0 {
			continue
		}
		fmt.Fprintln(bw, n.Key)
		for _, e := range edges {
			callee, _ := doc.Node(e.To)
			fmt.Fprintf(bw, "  -> %s  [%s]", callee.Key, e.Kind)
			if e.Line > 0 {
				fmt.Fprintf(bw, "  %s:%d", e.File, e.Line)
			}
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}

// WriteDOT writes a Graphviz digraph. Unlikely edges are dashed.
func WriteDOT(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph callgraph {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [shape=box, fontname=\"monospace\"];")
	for _, n := range doc.Nodes {
		shape := ""
		if n.Kind == KindLambda {
			shape = ", shape=ellipse"
		}
		fmt.Fprintf(bw, "  n%d [label=%s%s];\n", n.ID, dotQuote(n.Key), shape)
	}
	for _, e := range doc.Edges {
		style := "solid"
		if !e.Likely {
			style = "dashed"
		}
		fmt.Fprintf(bw, "  n%d -> n%d [label=%s, style=%s];\n", e.From, e.To, dotQuote(e.Kind), style)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
