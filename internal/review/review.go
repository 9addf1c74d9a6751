// Package review runs the optional consistency pass over the assembled
// document. Failures here never fail a run.
package review

import (
	"context"
	"strings"

	"github.com/ShayCichocki/longform/internal/logging"
	"github.com/ShayCichocki/longform/internal/oracle"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

const reviewInstructions = `You are the final editor of a long document that was drafted one section at a time from a shared outline and source material.

Read the whole document and the source material below, then:
- Make the document internally consistent: remove contradictions between sections, align terminology, names, numbers and defaults.
- Where detail is ambiguous or missing, resolve it by editing the document directly, staying faithful to the source material.
- Keep the existing structure, headings, anchors and table of contents unless they are wrong.

Return the entire corrected document as Markdown only. Do not wrap it in code fences and do not add commentary before or after it.`

// BuildPrompt returns the review request.
func BuildPrompt(document, excerpt string) string {
	var sb strings.Builder
	sb.WriteString(reviewInstructions)
	sb.WriteString("\n\n## Source Material\n\n")
	sb.WriteString(excerpt)
	sb.WriteString("\n\n## Document\n\n")
	sb.WriteString(document)
	sb.WriteString("\n")
	return sb.String()
}

// StripFences removes one code fence wrapping the whole text. The first
// line must open a bare or markdown fence and the last line must close it;
// anything else is returned trimmed but otherwise unchanged.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")
	if len(lines) == 1 {
		return ""
	}
	open := strings.ToLower(strings.TrimSpace(strings.TrimLeft(lines[0], "`")))
	if open != "" && open != "markdown" && open != "md" {
		return t
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return t
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// Result reports the outcome of a review. Reason is set when the document
// was left as assembled.
type Result struct {
	Reviewed bool
	Cached   bool
	// BackupCreated is true when this review wrote the .initial.md copy.
	BackupCreated bool
	Reason        string
}

// Reviewer rewrites the canonical document through the oracle.
type Reviewer struct {
	Oracle    oracle.Oracle
	Model     string
	Workspace *workspace.Workspace
	Ledger    state.ArtifactStore
	Log       *logging.Logger
	RunID     string
	Excerpt   string
	// Force bypasses the cached review.
	Force bool
}

// Review sends the document at docPath for review and replaces it with
// the corrected text. The pre-review document is copied to its
// .initial.md path the first time only. Oracle errors and empty answers
// are reported in Result, not returned.
func (r *Reviewer) Review(ctx context.Context, docPath string) (Result, error) {
	doc, ok, err := workspace.ReadFile(docPath)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Reason: "document not found"}, nil
	}
	inputHash := state.HashContent(doc)
	responsePath := r.Workspace.Response("review.md")

	if !r.Force {
		if text, hit := r.cached(inputHash, responsePath); hit {
			res, err := r.apply(docPath, text, inputHash)
			res.Cached = true
			if err == nil {
				r.Log.Log("Document unchanged since last review; reusing reviewed text")
			}
			return res, err
		}
	}

	prompt := BuildPrompt(doc, r.Excerpt)
	if err := workspace.WriteFile(r.Workspace.Prompt("review.md"), prompt); err != nil {
		return Result{}, err
	}

	r.Log.Log("Requesting consistency review")
	resp, err := r.Oracle.Generate(ctx, r.Model, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		r.Log.Warn("Review failed, keeping assembled document: %v", err)
		return Result{Reason: err.Error()}, nil
	}
	if err := workspace.WriteFile(responsePath, resp); err != nil {
		return Result{}, err
	}

	text := StripFences(resp)
	if text == "" {
		r.Log.Warn("Review returned no content, keeping assembled document")
		return Result{Reason: "empty review response"}, nil
	}

	return r.apply(docPath, text, inputHash)
}

// cached returns the stored review text when the ledger says it was
// produced from a document hashing to inputHash.
func (r *Reviewer) cached(inputHash, responsePath string) (string, bool) {
	if r.Ledger == nil {
		return "", false
	}
	entry, err := r.Ledger.GetArtifact(state.KeyReview)
	if err != nil || entry == nil || entry.ContentHash != inputHash {
		return "", false
	}
	resp, ok, err := workspace.ReadFile(responsePath)
	if err != nil || !ok {
		return "", false
	}
	text := StripFences(resp)
	return text, text != ""
}

func (r *Reviewer) apply(docPath, text, inputHash string) (Result, error) {
	res := Result{Reviewed: true}

	created, err := workspace.CopyOnce(docPath, workspace.BackupPath(docPath))
	if err != nil {
		return Result{}, err
	}
	if created {
		r.Log.Log("Saved pre-review document to %s", r.Workspace.Rel(workspace.BackupPath(docPath)))
	}
	res.BackupCreated = created

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := workspace.WriteFile(docPath, text); err != nil {
		return Result{}, err
	}

	if r.Ledger != nil {
		// The review entry is keyed on its input so an unchanged document reuses it
		if err := r.Ledger.PutArtifact(&state.Artifact{
			Key:         state.KeyReview,
			Kind:        state.KindReview,
			Path:        r.Workspace.Rel(r.Workspace.Response("review.md")),
			Status:      state.StatusReviewed,
			ContentHash: inputHash,
			RunID:       r.RunID,
		}); err != nil {
			return Result{}, err
		}
		if err := r.Ledger.PutArtifact(&state.Artifact{
			Key:         state.KeyDocument,
			Kind:        state.KindDocument,
			Path:        r.Workspace.Rel(docPath),
			Status:      state.StatusReviewed,
			ContentHash: state.HashContent(text),
			RunID:       r.RunID,
		}); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}
