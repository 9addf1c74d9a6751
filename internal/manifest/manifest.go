// Package manifest flattens a recursive outline into an ordered arena of
// addressable nodes.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ShayCichocki/longform/internal/outline"
	"github.com/ShayCichocki/longform/internal/workspace"
)

// EmptyManifestError is returned when an outline has no sections.
type EmptyManifestError struct{}

func (e *EmptyManifestError) Error() string {
	return "outline contains no sections"
}

// Node is one flattened outline entry.
type Node struct {
	Slug           string   `json:"slug" yaml:"slug"`
	Title          string   `json:"title" yaml:"title"`
	Summary        string   `json:"summary" yaml:"summary"`
	Label          string   `json:"label" yaml:"label"`
	Level          int      `json:"level" yaml:"level"`
	Path           []int    `json:"path" yaml:"path,flow"`
	ParentSlug     string   `json:"parent_slug" yaml:"parent_slug"`
	ParentLabel    string   `json:"parent_label" yaml:"parent_label"`
	Breadcrumbs    []string `json:"breadcrumbs" yaml:"breadcrumbs"`
	ChildrenTitles []string `json:"children_titles" yaml:"children_titles"`
}

// FileName returns the section artifact name: the label with dots turned
// into dashes, an underscore, then the slug.
func (n *Node) FileName() string {
	return strings.ReplaceAll(n.Label, ".", "-") + "_" + n.Slug + ".md"
}

// Manifest is the flattened outline.
type Manifest struct {
	// TOC is the outline JSON the manifest was built from.
	TOC json.RawMessage `json:"toc"`
	// Nodes are in document (path) order.
	Nodes []*Node `json:"nodes"`
	// GenerationOrder lists slugs by level, then path.
	GenerationOrder []string `json:"generation_order"`

	bySlug map[string]*Node
}

// Build flattens o depth-first. Node summaries, breadcrumbs and children
// titles come straight from the outline; slugs are deduplicated across the
// whole manifest in path order.
func Build(o *outline.Outline) (*Manifest, error) {
	if o == nil || len(o.Sections) == 0 {
		return nil, &EmptyManifestError{}
	}

	raw, err := o.Raw()
	if err != nil {
		return nil, fmt.Errorf("encode outline: %w", err)
	}

	m := &Manifest{TOC: raw}
	seen := slugSet{}

	var walk func(nodes []*outline.Node, parent *Node, prefix []int, crumbs []string)
	walk = func(nodes []*outline.Node, parent *Node, prefix []int, crumbs []string) {
		for i, src := range nodes {
			path := append(append([]int(nil), prefix...), i)

			node := &Node{
				Slug:           seen.claim(Slugify(src.Title)),
				Title:          src.Title,
				Summary:        src.Summary,
				Label:          label(path),
				Level:          len(path),
				Path:           path,
				Breadcrumbs:    append([]string{}, crumbs...),
				ChildrenTitles: childTitles(src),
			}
			if parent != nil {
				node.ParentSlug = parent.Slug
				node.ParentLabel = parent.Label
			}
			m.Nodes = append(m.Nodes, node)

			walk(src.Subsections, node, path, append(append([]string(nil), crumbs...), src.Title))
		}
	}
	walk(o.Sections, nil, nil, nil)

	m.index()
	m.GenerationOrder = generationOrder(m.Nodes)
	return m, nil
}

func label(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ".")
}

func childTitles(n *outline.Node) []string {
	titles := []string{}
	for _, c := range n.Subsections {
		titles = append(titles, c.Title)
	}
	return titles
}

// generationOrder sorts slugs by (level, path) so every parent precedes its children.
func generationOrder(nodes []*Node) []string {
	ordered := append([]*Node(nil), nodes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Level != ordered[j].Level {
			return ordered[i].Level < ordered[j].Level
		}
		return lessPath(ordered[i].Path, ordered[j].Path)
	})

	slugs := make([]string, len(ordered))
	for i, n := range ordered {
		slugs[i] = n.Slug
	}
	return slugs
}

func lessPath(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (m *Manifest) index() {
	m.bySlug = make(map[string]*Node, len(m.Nodes))
	for _, n := range m.Nodes {
		m.bySlug[n.Slug] = n
	}
}

// Node returns the node with slug, or nil.
func (m *Manifest) Node(slug string) *Node {
	if m.bySlug == nil {
		m.index()
	}
	return m.bySlug[slug]
}

// Parent returns the parent of n, or nil for a top-level node.
func (m *Manifest) Parent(n *Node) *Node {
	if n.ParentSlug == "" {
		return nil
	}
	return m.Node(n.ParentSlug)
}

// DocumentTitle returns the document title recorded in the TOC, or "".
func (m *Manifest) DocumentTitle() string {
	o, err := outline.Decode(m.TOC)
	if err != nil {
		return ""
	}
	return o.DocumentTitle
}

// Save writes the manifest as indented JSON.
func Save(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return workspace.WriteFile(path, string(data)+"\n")
}

// Load reads a manifest written by Save.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	m.index()
	return &m, nil
}
