package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/oracle"
	"github.com/ShayCichocki/longform/internal/outline"
	"github.com/ShayCichocki/longform/internal/section"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

const sourceText = "# Widget\n\n## Intro\n\nThe widget service stores widgets.\n"

const outlineResponse = "Here is the outline:\n```json\n" + `{
  "document_title": "Widget Service",
  "sections": [
    {"title": "Overview", "summary": "What the service is", "subsections": [
      {"title": "Goals", "summary": "What success means"}
    ]},
    {"title": "API", "summary": "Endpoints"}
  ]
}` + "\n```\n"

// outlineNodes is the number of nodes in outlineResponse.
const outlineNodes = 3

// script answers each request kind; nil handlers use the defaults.
type script struct {
	outline func() (string, error)
	section func(heading string) (string, error)
	review  func(doc string) (string, error)
}

func (s script) oracle() *oracle.Counting {
	return oracle.NewCounting(oracle.Func(func(ctx context.Context, model, prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "You are planning"):
			if s.outline != nil {
				return s.outline()
			}
			return outlineResponse, nil
		case strings.HasPrefix(prompt, "You are the final editor"):
			doc := prompt[strings.Index(prompt, "## Document\n\n")+len("## Document\n\n"):]
			if s.review != nil {
				return s.review(doc)
			}
			return "```markdown\n" + strings.TrimSpace(doc) + "\n\nReviewed.\n```", nil
		default:
			heading := ""
			for _, line := range strings.Split(prompt, "\n") {
				if strings.HasPrefix(line, "- Heading: ") {
					heading = strings.TrimPrefix(line, "- Heading: ")
					break
				}
			}
			if s.section != nil {
				return s.section(heading)
			}
			return heading + "\n\nDrafted body.\n", nil
		}
	}))
}

func setup(t *testing.T) (RunConfig, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "widget.md")
	if err := os.WriteFile(src, []byte(sourceText), 0644); err != nil {
		t.Fatal(err)
	}
	rc := NewRunConfig(config.Default(), dir, src)
	return rc, rc.Root("widget")
}

// snapshot returns every artifact under root except the ledger and logs.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "logs" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "state.db") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func lastRun(t *testing.T, root string) *state.Run {
	t.Helper()
	db, err := state.OpenLedger(filepath.Join(root, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	r, err := db.LastRun()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunComplete(t *testing.T) {
	rc, root := setup(t)
	o := script{}.oracle()

	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != StateReviewed {
		t.Errorf("state = %s, want %s", sum.State, StateReviewed)
	}
	if sum.Root != root {
		t.Errorf("root = %s, want %s", sum.Root, root)
	}
	if want := 1 + outlineNodes + 1; o.Calls() != want || sum.Calls != want {
		t.Errorf("calls = %d (summary %d), want %d", o.Calls(), sum.Calls, want)
	}
	if sum.Generated != outlineNodes {
		t.Errorf("generated = %d, want %d", sum.Generated, outlineNodes)
	}

	files := snapshot(t, root)
	for _, name := range []string{
		"source/full.md",
		"source/excerpt.md",
		"outline.json",
		"manifest.json",
		"manifest.flat.yaml",
		"toc.md",
		"document.md",
		"document.initial.md",
		"prompts/outline.md",
		"responses/outline.md",
		"prompts/review.md",
		"responses/review.md",
		"sections/1_overview.md",
		"sections/1-1_goals.md",
		"sections/2_api.md",
	} {
		if _, ok := files[filepath.FromSlash(name)]; !ok {
			t.Errorf("missing artifact %s", name)
		}
	}

	doc := files["document.md"]
	if !strings.HasPrefix(doc, "# Widget Service\n") || !strings.HasSuffix(doc, "Reviewed.\n") {
		t.Errorf("document = %q", doc)
	}
	if strings.Contains(files["document.initial.md"], "Reviewed.") {
		t.Error("backup should hold the pre-review document")
	}

	run := lastRun(t, root)
	if run.State != string(StateReviewed) || run.Error != "" || run.OracleCalls != 1+outlineNodes+1 {
		t.Errorf("run record = %+v", run)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	rc, root := setup(t)
	o := script{}.oracle()

	if _, err := New(rc, WithOracle(o)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := snapshot(t, root)
	calls := o.Calls()

	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o.Calls() != calls {
		t.Errorf("second run made %d oracle call(s)", o.Calls()-calls)
	}
	if sum.Skipped != outlineNodes || !sum.Review.Cached {
		t.Errorf("summary = %+v", sum)
	}

	second := snapshot(t, root)
	if len(first) != len(second) {
		t.Errorf("artifact count changed: %d -> %d", len(first), len(second))
	}
	for name, content := range first {
		if second[name] != content {
			t.Errorf("%s changed between runs", name)
		}
	}
}

func TestRunForceRegenerates(t *testing.T) {
	rc, _ := setup(t)
	o := script{}.oracle()
	if _, err := New(rc, WithOracle(o)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	rc.Force = true
	if _, err := New(rc, WithOracle(o)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := 2 * (1 + outlineNodes + 1); o.Calls() != want {
		t.Errorf("calls = %d, want %d", o.Calls(), want)
	}
}

func TestRunForcePrunesRemovedSections(t *testing.T) {
	rc, root := setup(t)
	if _, err := New(rc, WithOracle(script{}.oracle())).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	shorter := script{outline: func() (string, error) {
		return `{"document_title": "Widget Service", "sections": [{"title": "Overview", "summary": "What the service is"}]}`, nil
	}}
	rc.Force = true
	if _, err := New(rc, WithOracle(shorter.oracle())).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	db, err := state.OpenLedger(filepath.Join(root, "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	entries, err := db.ListArtifacts(state.KindSection)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Key != state.SectionKey("overview") {
		t.Errorf("section entries = %+v, want only overview", entries)
	}
}

func TestRunEmptySectionResponse(t *testing.T) {
	rc, root := setup(t)
	o := script{section: func(heading string) (string, error) {
		if strings.Contains(heading, "{#api}") {
			return "  \n", nil
		}
		return heading + "\n\nBody.\n", nil
	}}.oracle()

	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if stageErr.Stage != StageSections || stageErr.Slug != "api" {
		t.Errorf("stage error = %+v", stageErr)
	}
	var genErr *section.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("err = %v, want GenerationError", err)
	}
	if stageErr.Path != filepath.Join(root, "responses", "sections", "2_api.md") {
		t.Errorf("path = %s", stageErr.Path)
	}
	if workspace.Exists(filepath.Join(root, "sections", "2_api.md")) {
		t.Error("no artifact may be written for an empty response")
	}
	if workspace.Exists(filepath.Join(root, "document.md")) {
		t.Error("assembly must not run after a hard failure")
	}
	if sum.State != StateManifestBuilt {
		t.Errorf("state = %s", sum.State)
	}
	if run := lastRun(t, root); run.Error == "" || run.State != string(StateManifestBuilt) {
		t.Errorf("run record = %+v", run)
	}
}

func TestRunExtractionFailure(t *testing.T) {
	rc, root := setup(t)
	o := script{outline: func() (string, error) { return "I cannot help with that.", nil }}.oracle()

	_, err := New(rc, WithOracle(o)).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageOutline {
		t.Fatalf("err = %v, want outline StageError", err)
	}
	var extractErr *outline.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Errorf("err = %v, want ExtractionError", err)
	}
	if stageErr.Path != filepath.Join(root, "responses", "outline.md") {
		t.Errorf("path = %s", stageErr.Path)
	}
}

func TestRunDryRunThenReal(t *testing.T) {
	rc, root := setup(t)
	o := script{}.oracle()

	dry := rc
	dry.DryRun = true
	sum, err := New(dry, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o.Calls() != 0 {
		t.Errorf("dry run made %d call(s)", o.Calls())
	}
	if !sum.Degraded || sum.Reason != ReasonDryRun || sum.State != StateReviewSkipped {
		t.Errorf("summary = %+v", sum)
	}
	placeholder, err := os.ReadFile(filepath.Join(root, "sections", "1_intro.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !section.IsPlaceholder(string(placeholder)) {
		t.Errorf("section should be a placeholder: %q", placeholder)
	}
	o1, err := outline.Load(filepath.Join(root, "outline.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !o1.Placeholder || o1.DocumentTitle != "Widget" {
		t.Errorf("outline = %+v", o1)
	}

	// A real run replaces the placeholder outline.
	sum, err = New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + outlineNodes + 1; o.Calls() != want {
		t.Errorf("calls = %d, want %d", o.Calls(), want)
	}
	if sum.Degraded || sum.State != StateReviewed {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunForcedDryRunKeepsRealArtifacts(t *testing.T) {
	rc, root := setup(t)
	o := script{}.oracle()
	if _, err := New(rc, WithOracle(o)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	kept := func(files map[string]string) map[string]string {
		out := make(map[string]string)
		for name, content := range files {
			if name == "outline.json" || filepath.Dir(name) == "sections" {
				out[name] = content
			}
		}
		return out
	}
	before := kept(snapshot(t, root))
	if len(before) != 1+outlineNodes {
		t.Fatalf("expected outline and %d sections, got %v", outlineNodes, len(before))
	}

	dry := rc
	dry.DryRun = true
	dry.Force = true
	sum, err := New(dry, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Degraded || sum.Placeholders != 0 {
		t.Errorf("summary = %+v", sum)
	}

	after := kept(snapshot(t, root))
	for name, content := range before {
		if after[name] != content {
			t.Errorf("%s was overwritten by a forced dry run", name)
		}
		if strings.Contains(after[name], `"placeholder": true`) || section.IsPlaceholder(after[name]) {
			t.Errorf("%s became a placeholder", name)
		}
	}
}

func TestRunUnavailableOracleDegrades(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("PATH", t.TempDir())

	rc, _ := setup(t)
	settings := config.Default()
	sum, err := New(rc, WithSettings(settings)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Degraded || sum.Reason != ReasonUnavailable || sum.Strategy != "none" {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Placeholders != 1 {
		t.Errorf("placeholders = %d, want 1", sum.Placeholders)
	}
}

func TestRunNoReview(t *testing.T) {
	rc, root := setup(t)
	rc.NoReview = true
	rc.HTML = true
	o := script{}.oracle()

	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != StateReviewSkipped {
		t.Errorf("state = %s", sum.State)
	}
	if want := 1 + outlineNodes; o.Calls() != want {
		t.Errorf("calls = %d, want %d", o.Calls(), want)
	}
	if workspace.Exists(filepath.Join(root, "document.initial.md")) {
		t.Error("no backup without review")
	}
	html, err := os.ReadFile(sum.HTML)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), `id="api"`) {
		t.Errorf("html missing section anchor")
	}
}

func TestRunReviewSoftFailure(t *testing.T) {
	rc, root := setup(t)
	o := script{review: func(string) (string, error) { return "", errors.New("overloaded") }}.oracle()

	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatalf("review failure must not fail the run: %v", err)
	}
	if sum.State != StateReviewSkipped || sum.Review.Reviewed || sum.Review.Reason == "" {
		t.Errorf("summary = %+v", sum)
	}
	if workspace.Exists(filepath.Join(root, "document.initial.md")) {
		t.Error("backup written for a failed review")
	}
}

func TestRunStopSignal(t *testing.T) {
	rc, root := setup(t)
	var sent atomic.Bool
	o := script{section: func(heading string) (string, error) {
		if sent.CompareAndSwap(false, true) {
			if err := SendStop(filepath.Join(root, "signals", "stop")); err != nil {
				return "", err
			}
		}
		return heading + "\n\nBody.\n", nil
	}}.oracle()

	_, err := New(rc, WithOracle(o)).Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if o.Calls() != 2 {
		t.Errorf("calls before stop = %d, want 2", o.Calls())
	}

	// The next run clears the signal and finishes the remaining work.
	sum, err := New(rc, WithOracle(o)).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Generated != outlineNodes-1 {
		t.Errorf("summary = %+v", sum)
	}
	if want := 2 + (outlineNodes - 1) + 1; o.Calls() != want {
		t.Errorf("calls = %d, want %d", o.Calls(), want)
	}
}

func TestRunCanceled(t *testing.T) {
	rc, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	o := script{section: func(heading string) (string, error) {
		cancel()
		return "", context.Canceled
	}}.oracle()

	_, err := New(rc, WithOracle(o)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunEvents(t *testing.T) {
	rc, _ := setup(t)
	em := NewEmitter(128)

	if _, err := New(rc, WithOracle(script{}.oracle()), WithEmitter(em)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var states []State
	sections := 0
	var last Event
	for ev := range em.Events() {
		switch ev.Type {
		case EventState:
			states = append(states, ev.State)
		case EventSection:
			sections++
			if ev.Total != outlineNodes {
				t.Errorf("total = %d", ev.Total)
			}
		}
		last = ev
	}

	want := []State{StateOutlineReady, StateManifestBuilt, StateSectionsComplete, StateAssembled, StateReviewed}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
	if sections != outlineNodes {
		t.Errorf("section events = %d", sections)
	}
	if last.Type != EventDone || last.Err != nil || last.Calls != 1+outlineNodes+1 {
		t.Errorf("last event = %+v", last)
	}
}

func TestRunMissingSource(t *testing.T) {
	rc, _ := setup(t)
	rc.SourcePath = filepath.Join(t.TempDir(), "nope.md")
	_, err := New(rc, WithOracle(script{}.oracle())).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSource {
		t.Errorf("err = %v, want source StageError", err)
	}
}

func TestRunExplicitOutputDir(t *testing.T) {
	rc, _ := setup(t)
	rc.OutputDir = filepath.Join(t.TempDir(), "out")
	rc.DocumentName = "widget.md"
	sum, err := New(rc, WithOracle(script{}.oracle())).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Document != filepath.Join(rc.OutputDir, "widget.md") {
		t.Errorf("document = %s", sum.Document)
	}
	if !workspace.Exists(filepath.Join(rc.OutputDir, "widget.initial.md")) {
		t.Error("backup should follow the document name")
	}
}
