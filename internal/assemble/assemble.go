// Package assemble merges section artifacts into the final document.
package assemble

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/longform/internal/manifest"
	"github.com/ShayCichocki/longform/internal/outline"
	"github.com/ShayCichocki/longform/internal/workspace"
)

// provenance is the fixed note under the title. It carries no timestamps
// so that reassembling unchanged sections is byte-identical.
const provenance = "_Generated by longform from the source document. Sections were drafted individually from a shared outline; see the table of contents below._"

// RenderTOC renders one bullet per node in path order, indented two
// spaces per level below the first.
func RenderTOC(m *manifest.Manifest) string {
	var sb strings.Builder
	for _, n := range m.Nodes {
		indent := strings.Repeat("  ", max(n.Level-1, 0))
		fmt.Fprintf(&sb, "%s- [%s %s](#%s)\n", indent, n.Label, n.Title, n.Slug)
	}
	return sb.String()
}

// Result summarizes one assembly.
type Result struct {
	// Content is the assembled document.
	Content string
	// Included lists the slugs whose artifacts were found, in path order.
	Included []string
	// Missing lists the slugs without an artifact.
	Missing []string
}

// Assemble composes the document from whatever section artifacts exist
// under ws. Missing sections are left out without error.
func Assemble(m *manifest.Manifest, ws *workspace.Workspace) (*Result, error) {
	title := m.DocumentTitle()
	if title == "" {
		title = outline.DefaultTitle
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	sb.WriteString(provenance)
	sb.WriteString("\n\n## Table of Contents\n\n")
	sb.WriteString(RenderTOC(m))

	r := &Result{}
	for _, n := range m.Nodes {
		content, ok, err := workspace.ReadFile(ws.Section(n.FileName()))
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", n.Slug, err)
		}

		fmt.Fprintf(&sb, "\n<a id=\"%s\"></a>\n", n.Slug)
		if !ok {
			r.Missing = append(r.Missing, n.Slug)
			continue
		}
		r.Included = append(r.Included, n.Slug)
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(content, "\n"))
		sb.WriteString("\n")
	}

	r.Content = sb.String()
	return r, nil
}

// Write assembles the document and writes toc.md and the document file.
func Write(m *manifest.Manifest, ws *workspace.Workspace, docPath string) (*Result, error) {
	if err := workspace.WriteFile(ws.TOC(), RenderTOC(m)); err != nil {
		return nil, err
	}
	r, err := Assemble(m, ws)
	if err != nil {
		return nil, err
	}
	if err := workspace.WriteFile(docPath, r.Content); err != nil {
		return nil, err
	}
	return r, nil
}
