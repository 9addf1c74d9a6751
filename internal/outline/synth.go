package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/longform/internal/logging"
	"github.com/ShayCichocki/longform/internal/oracle"
	"github.com/ShayCichocki/longform/internal/workspace"
)

const outlineInstructions = `You are planning a long, hierarchically structured document (a requirements or design document) based on the source material below.

Produce an outline as strict JSON and nothing else, using exactly this shape:

{
  "document_title": "string",
  "sections": [
    {
      "title": "string",
      "summary": "one or two sentences describing what the section must cover",
      "subsections": [ ...same shape, recursively... ]
    }
  ]
}

Rules:
- Cover every topic of the source material; do not invent scope the source does not support.
- Use at most four levels of nesting.
- Titles are short noun phrases without numbering.
- Every node carries a summary.
- Output only the JSON object. No commentary, no code fences.`

// BuildPrompt returns the outline request for a source excerpt.
func BuildPrompt(excerpt string) string {
	var sb strings.Builder
	sb.WriteString(outlineInstructions)
	sb.WriteString("\n\n## Source Material\n\n")
	sb.WriteString(excerpt)
	sb.WriteString("\n")
	return sb.String()
}

// Synthesizer requests an outline from the oracle.
type Synthesizer struct {
	Oracle    oracle.Oracle
	Model     string
	Workspace *workspace.Workspace
	Log       *logging.Logger
}

// Synthesize sends one outline request and returns the decoded outline.
// The prompt and raw response are saved before extraction, and the
// extracted JSON is saved as outline.json.
func (s *Synthesizer) Synthesize(ctx context.Context, excerpt string) (*Outline, error) {
	ws := s.Workspace
	prompt := BuildPrompt(excerpt)
	if err := workspace.WriteFile(ws.Prompt("outline.md"), prompt); err != nil {
		return nil, err
	}

	s.Log.Log("Requesting outline (%s, model %s)", s.Oracle.Name(), s.Model)
	resp, err := s.Oracle.Generate(ctx, s.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("outline request: %w", err)
	}

	responsePath := ws.Response("outline.md")
	if err := workspace.WriteFile(responsePath, resp); err != nil {
		return nil, err
	}

	o, err := Parse(resp)
	if err != nil {
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) {
			extractErr.ResponsePath = responsePath
		}
		return nil, err
	}
	if skipped := o.skipped; skipped > 0 {
		s.Log.Warn("Outline response held %d JSON block(s) before the one with sections; using the later block", skipped)
	}
	if dropped := o.Dropped(); dropped > 0 {
		s.Log.Warn("Outline response had %d malformed section entr(ies); they were left out", dropped)
	}

	if err := Save(ws.OutlineJSON(), o); err != nil {
		return nil, err
	}
	s.Log.Log("Outline ready: %q with %d nodes", o.DocumentTitle, o.Count())
	return o, nil
}

// Parse extracts and decodes an outline from response text.
func Parse(resp string) (*Outline, error) {
	raw, skipped, err := Extract(resp)
	if err != nil {
		return nil, err
	}
	o, err := Decode(raw)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	o.skipped = skipped
	return o, nil
}
