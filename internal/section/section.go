// Package section drafts one Markdown artifact per manifest node.
package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/longform/internal/logging"
	"github.com/ShayCichocki/longform/internal/manifest"
	"github.com/ShayCichocki/longform/internal/oracle"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

// GenerationError is returned when the oracle produces no content for a section.
type GenerationError struct {
	Slug         string
	ResponsePath string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("empty response for section %q (raw response: %s)", e.Slug, e.ResponsePath)
}

// placeholderPrefix opens every placeholder artifact.
const placeholderPrefix = "<!-- longform:placeholder"

// PlaceholderMarker returns the first line of a placeholder artifact.
func PlaceholderMarker(reason, slug string) string {
	return fmt.Sprintf("%s reason=%s slug=%s -->", placeholderPrefix, reason, slug)
}

// IsPlaceholder reports whether content is a placeholder artifact.
func IsPlaceholder(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), placeholderPrefix)
}

// PlaceholderContent renders the artifact written when no oracle is used.
func PlaceholderContent(n *manifest.Node, reason string) string {
	var sb strings.Builder
	sb.WriteString(PlaceholderMarker(reason, n.Slug))
	sb.WriteString("\n")
	sb.WriteString(Heading(n))
	sb.WriteString("\n\n")
	sb.WriteString("_This section has not been generated yet._\n")
	if n.Summary != "" {
		sb.WriteString("\n> ")
		sb.WriteString(n.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Outcome says what happened to one section.
type Outcome string

const (
	OutcomeGenerated   Outcome = "generated"
	OutcomeSkipped     Outcome = "skipped"
	OutcomePlaceholder Outcome = "placeholder"
)

// Result describes one processed section.
type Result struct {
	Slug    string
	File    string
	Outcome Outcome
}

// Generator drafts section artifacts in generation order.
type Generator struct {
	Oracle    oracle.Oracle
	Model     string
	Workspace *workspace.Workspace
	Ledger    state.ArtifactStore
	Log       *logging.Logger
	RunID     string
	Excerpt   string

	// Force regenerates artifacts that already exist.
	Force bool
	// Degraded writes placeholders instead of calling the oracle.
	Degraded bool
	// Reason is recorded in placeholder markers (dry-run, unavailable).
	Reason string

	// OnSection is called after each section with its index in generation order.
	OnSection func(index, total int, r Result)
}

// Run processes every node of m in generation order. It stops at the first
// hard error; sections finished before it stay on disk.
func (g *Generator) Run(ctx context.Context, m *manifest.Manifest) ([]Result, error) {
	results := make([]Result, 0, len(m.GenerationOrder))
	for i, slug := range m.GenerationOrder {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		node := m.Node(slug)
		if node == nil {
			return results, fmt.Errorf("manifest has no node %q", slug)
		}

		r, err := g.Generate(ctx, m, node)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		if g.OnSection != nil {
			g.OnSection(i, len(m.GenerationOrder), r)
		}
	}
	return results, nil
}

// Generate produces the artifact for one node unless it is already done.
func (g *Generator) Generate(ctx context.Context, m *manifest.Manifest, n *manifest.Node) (Result, error) {
	file := n.FileName()
	path := g.Workspace.Section(file)
	r := Result{Slug: n.Slug, File: file}

	done, err := g.adoptExisting(n, path)
	if err != nil {
		return r, err
	}
	if done {
		g.Log.Log("Section %s %s already present, skipping", n.Label, n.Slug)
		r.Outcome = OutcomeSkipped
		return r, nil
	}

	if g.Degraded {
		content := PlaceholderContent(n, g.Reason)
		if err := workspace.WriteFile(path, content); err != nil {
			return r, err
		}
		if err := g.record(n, path, state.StatusPlaceholder, content); err != nil {
			return r, err
		}
		g.Log.Log("Section %s %s: placeholder (%s)", n.Label, n.Slug, g.Reason)
		r.Outcome = OutcomePlaceholder
		return r, nil
	}

	prompt := BuildPrompt(n, m.Parent(n), g.Excerpt)
	if err := workspace.WriteFile(g.Workspace.SectionPrompt(file), prompt); err != nil {
		return r, err
	}

	g.Log.Log("Drafting section %s %s", n.Label, n.Title)
	resp, err := g.Oracle.Generate(ctx, g.Model, prompt)
	if err != nil {
		return r, fmt.Errorf("section %s request: %w", n.Slug, err)
	}

	responsePath := g.Workspace.SectionResponse(file)
	if err := workspace.WriteFile(responsePath, resp); err != nil {
		return r, err
	}
	if strings.TrimSpace(resp) == "" {
		return r, &GenerationError{Slug: n.Slug, ResponsePath: responsePath}
	}

	if err := workspace.WriteFile(path, resp); err != nil {
		return r, err
	}
	if err := g.record(n, path, state.StatusGenerated, resp); err != nil {
		return r, err
	}
	r.Outcome = OutcomeGenerated
	return r, nil
}

// adoptExisting reports whether the artifact at path counts as done, and
// brings its ledger entry in line with the file on disk. A degraded
// generator never replaces real content, even when forced.
func (g *Generator) adoptExisting(n *manifest.Node, path string) (bool, error) {
	if g.Force && !g.Degraded {
		return false, nil
	}
	content, ok, err := workspace.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if !ok || strings.TrimSpace(content) == "" {
		return false, nil
	}
	placeholder := IsPlaceholder(content)
	if placeholder && (!g.Degraded || g.Force) {
		return false, nil
	}

	if g.Ledger == nil {
		return true, nil
	}
	entry, err := g.Ledger.GetArtifact(state.SectionKey(n.Slug))
	if err != nil {
		return false, err
	}

	hash := state.HashContent(content)
	switch {
	case entry == nil:
		status := state.StatusAdopted
		if placeholder {
			status = state.StatusPlaceholder
		}
		g.Log.Log("Adopting existing section file %s", n.FileName())
		return true, g.put(n, path, status, hash)
	case entry.ContentHash != hash:
		g.Log.Warn("Section %s was edited by hand since it was recorded; keeping the edit", n.FileName())
		return true, g.put(n, path, state.StatusAdopted, hash)
	}
	return true, nil
}

func (g *Generator) record(n *manifest.Node, path string, status state.ArtifactStatus, content string) error {
	if g.Ledger == nil {
		return nil
	}
	return g.put(n, path, status, state.HashContent(content))
}

func (g *Generator) put(n *manifest.Node, path string, status state.ArtifactStatus, hash string) error {
	return g.Ledger.PutArtifact(&state.Artifact{
		Key:         state.SectionKey(n.Slug),
		Kind:        state.KindSection,
		Path:        g.Workspace.Rel(path),
		Status:      status,
		ContentHash: hash,
		RunID:       g.RunID,
	})
}
