// Package outline asks the oracle for a hierarchical outline of the target
// document and recovers it from free-form response text.
package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ShayCichocki/longform/internal/workspace"
)

// Node is one entry of the recursive outline.
type Node struct {
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Subsections []*Node `json:"subsections"`

	// dropped counts child entries that could not be decoded.
	dropped int
}

// UnmarshalJSON decodes a node leniently: scalar titles and summaries are
// stringified and "children" or "sections" stand in for "subsections".
func (n *Node) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// A bare string is taken as a title
		var title string
		if json.Unmarshal(data, &title) == nil {
			*n = Node{Title: strings.TrimSpace(title)}
			return nil
		}
		return fmt.Errorf("outline node: %w", err)
	}

	*n = Node{
		Title:   scalarString(fields["title"]),
		Summary: scalarString(fields["summary"]),
	}

	for _, key := range []string{"subsections", "children", "sections"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		children, dropped, err := decodeNodes(raw)
		if err != nil {
			continue
		}
		n.Subsections = children
		n.dropped = dropped
		break
	}
	return nil
}

// Outline is the document outline returned by the oracle.
type Outline struct {
	DocumentTitle string  `json:"document_title"`
	Sections      []*Node `json:"sections"`
	// Placeholder marks an outline derived without the oracle.
	Placeholder bool `json:"placeholder,omitempty"`

	// raw holds the JSON the outline was decoded from.
	raw json.RawMessage
	// skipped counts parseable JSON spans ahead of the one used.
	skipped int
	// dropped counts top-level section entries that could not be decoded.
	dropped int
}

// UnmarshalJSON decodes an outline object, or a bare array of sections.
func (o *Outline) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		sections, dropped, err := decodeNodes(trimmed)
		if err != nil {
			return fmt.Errorf("outline sections: %w", err)
		}
		*o = Outline{Sections: sections, dropped: dropped}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("outline: %w", err)
	}

	*o = Outline{DocumentTitle: scalarString(fields["document_title"])}
	if o.DocumentTitle == "" {
		o.DocumentTitle = scalarString(fields["title"])
	}
	if raw, ok := fields["placeholder"]; ok {
		_ = json.Unmarshal(raw, &o.Placeholder)
	}
	if raw, ok := fields["sections"]; ok {
		sections, dropped, err := decodeNodes(raw)
		if err != nil {
			return fmt.Errorf("outline sections: %w", err)
		}
		o.Sections = sections
		o.dropped = dropped
	}
	return nil
}

// Decode parses raw outline JSON and keeps raw for later persistence.
func Decode(raw json.RawMessage) (*Outline, error) {
	var o Outline
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	o.raw = append(json.RawMessage(nil), raw...)
	return &o, nil
}

// Raw returns the JSON the outline was decoded from, or its own encoding
// when it was built in memory.
func (o *Outline) Raw() (json.RawMessage, error) {
	if len(o.raw) > 0 {
		return o.raw, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save writes the outline as indented JSON.
func Save(path string, o *Outline) error {
	raw, err := o.Raw()
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("indent outline: %w", err)
	}
	buf.WriteByte('\n')
	return workspace.WriteFile(path, buf.String())
}

// Load reads an outline saved by Save.
func Load(path string) (*Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o, err := Decode(bytes.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return o, nil
}

// Count returns the total number of nodes in the outline.
func (o *Outline) Count() int {
	var count func([]*Node) int
	count = func(nodes []*Node) int {
		n := 0
		for _, node := range nodes {
			n += 1 + count(node.Subsections)
		}
		return n
	}
	return count(o.Sections)
}

// Dropped returns how many section entries, at any depth, were left out
// because they were not objects or strings.
func (o *Outline) Dropped() int {
	var count func([]*Node) int
	count = func(nodes []*Node) int {
		n := 0
		for _, node := range nodes {
			n += node.dropped + count(node.Subsections)
		}
		return n
	}
	return o.dropped + count(o.Sections)
}

// scalarString renders any JSON scalar as a trimmed string. Objects,
// arrays and null yield "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s)
		}
		return ""
	case '{', '[', 'n':
		return ""
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}

// decodeNodes decodes a JSON array one element at a time, so a malformed
// entry costs only itself. Null entries are skipped without counting.
func decodeNodes(raw json.RawMessage) ([]*Node, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, err
	}
	nodes := make([]*Node, 0, len(items))
	dropped := 0
	for _, item := range items {
		var n *Node
		if err := json.Unmarshal(item, &n); err != nil {
			dropped++
			continue
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, dropped, nil
}
