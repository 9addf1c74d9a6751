package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ShayCichocki/longform/internal/assemble"
	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/logging"
	"github.com/ShayCichocki/longform/internal/manifest"
	"github.com/ShayCichocki/longform/internal/oracle"
	"github.com/ShayCichocki/longform/internal/outline"
	"github.com/ShayCichocki/longform/internal/review"
	"github.com/ShayCichocki/longform/internal/section"
	"github.com/ShayCichocki/longform/internal/source"
	"github.com/ShayCichocki/longform/internal/state"
	"github.com/ShayCichocki/longform/internal/workspace"
)

// Degraded-mode reasons recorded in placeholders and the summary.
const (
	ReasonDryRun      = "dry-run"
	ReasonUnavailable = "oracle-unavailable"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSettings supplies the configuration used to select an oracle.
func WithSettings(cfg *config.Config) Option {
	return func(p *Pipeline) { p.settings = cfg }
}

// WithOracle skips strategy selection and uses o for every call.
func WithOracle(o oracle.Oracle) Option {
	return func(p *Pipeline) { p.oracle = o }
}

// WithConsole mirrors log lines to w. Without it only the log file is written.
func WithConsole(w io.Writer) Option {
	return func(p *Pipeline) { p.console = w }
}

// WithEmitter sends progress events to e. The pipeline closes e when the
// run ends.
func WithEmitter(e *Emitter) Option {
	return func(p *Pipeline) { p.emitter = e }
}

// Pipeline runs source -> outline -> manifest -> sections -> assembly -> review.
type Pipeline struct {
	run      RunConfig
	settings *config.Config
	oracle   oracle.Oracle
	console  io.Writer
	emitter  *Emitter
}

// New creates a pipeline for one run.
func New(run RunConfig, opts ...Option) *Pipeline {
	p := &Pipeline{run: run}
	for _, opt := range opts {
		opt(p)
	}
	if p.settings == nil {
		p.settings = config.Default()
	}
	return p
}

// Summary describes a finished or failed run.
type Summary struct {
	RunID    string
	State    State
	Root     string
	Document string
	HTML     string
	Strategy string

	// Degraded is true when no oracle was used; Reason says why.
	Degraded bool
	Reason   string

	Generated    int
	Skipped      int
	Placeholders int
	Missing      []string

	Review review.Result

	Calls     int
	TokensIn  int64
	TokensOut int64
	Cost      float64
	Elapsed   time.Duration
}

// runner holds the state of one Run call.
type runner struct {
	run     RunConfig
	ws      *workspace.Workspace
	log     *logging.Logger
	ledger  state.Ledger
	record  *state.Run
	oracle  oracle.Oracle
	counter *oracle.Counting
	stop    *StopWatcher
	emitter *Emitter
	sum     *Summary
	start   time.Time
}

// Run executes the pipeline. Hard failures are returned as *StageError;
// the summary is returned in every case once the workspace exists.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	defer p.emitter.Close()
	start := time.Now()

	doc, err := source.Load(p.run.SourcePath)
	if err != nil {
		err = &StageError{Stage: StageSource, Path: p.run.SourcePath, Err: err}
		p.emitter.Emit(Event{Type: EventDone, Err: err})
		return nil, err
	}

	ws := workspace.New(p.run.Root(doc.Stem()))
	if err := ws.Init(); err != nil {
		err = &StageError{Stage: StageSource, Path: ws.Root(), Err: err}
		p.emitter.Emit(Event{Type: EventDone, Err: err})
		return nil, err
	}

	log, err := logging.New(ws.LogFile(), p.console)
	if err != nil {
		return nil, err
	}
	defer log.Close()

	ledger, err := state.OpenLedger(ws.StateDB())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	stop, err := NewStopWatcher(ws.StopSignal())
	if err != nil {
		return nil, fmt.Errorf("watch stop signal: %w", err)
	}
	defer stop.Close()
	// A signal left behind by an earlier run must not stop this one.
	stop.Clear()

	r := &runner{
		run:     p.run,
		ws:      ws,
		log:     log,
		ledger:  ledger,
		stop:    stop,
		emitter: p.emitter,
		start:   start,
		sum:     &Summary{State: StateInit, Root: ws.Root()},
	}

	base, reason, err := p.resolveOracle(log)
	if err != nil {
		return r.sum, err
	}
	if base != nil {
		r.counter = oracle.NewCounting(base)
		r.oracle = &guarded{inner: r.counter, stop: stop}
		r.sum.Strategy = base.Name()
	} else {
		r.sum.Degraded = true
		r.sum.Reason = reason
		r.sum.Strategy = "none"
	}

	r.record = state.NewRun(p.run.SourcePath, ws.Root())
	r.record.Model = p.run.Model
	r.record.Strategy = r.sum.Strategy
	r.record.DryRun = p.run.DryRun
	r.record.Force = p.run.Force
	if err := ledger.CreateRun(r.record); err != nil {
		return r.sum, err
	}
	r.sum.RunID = r.record.ID

	log.Log("Run %s: %s (%s) -> %s", r.record.ID, p.run.SourcePath, doc.Format, ws.Root())
	if r.sum.Degraded {
		log.Warn("Running without an oracle (%s); sections will be placeholders", reason)
		r.emit(Event{Type: EventWarning, Message: "degraded mode: " + reason})
	} else {
		log.Log("Oracle strategy %s, model %s", r.sum.Strategy, p.run.Model)
	}

	runErr := r.execute(ctx, doc)
	r.finish(runErr)
	return r.sum, runErr
}

// resolveOracle returns the oracle to use, or nil and a reason when the
// run is degraded. Only configuration errors are returned as errors.
func (p *Pipeline) resolveOracle(log *logging.Logger) (oracle.Oracle, string, error) {
	if p.run.DryRun {
		return nil, ReasonDryRun, nil
	}
	if p.oracle != nil {
		return p.oracle, "", nil
	}
	o, err := oracle.Select(p.settings, p.run.Strategy)
	if errors.Is(err, oracle.ErrUnavailable) {
		log.Warn("%v", err)
		return nil, ReasonUnavailable, nil
	}
	if err != nil {
		return nil, "", err
	}
	return o, "", nil
}

func (r *runner) execute(ctx context.Context, doc *source.Document) error {
	ws := r.ws

	if err := workspace.WriteFile(ws.SourceFull(), doc.Text); err != nil {
		return &StageError{Stage: StageSource, Path: ws.SourceFull(), Err: err}
	}
	excerpt := source.Excerpt(doc.Text, r.run.excerptLines(), r.run.ExcerptChars)
	if err := workspace.WriteFile(ws.SourceExcerpt(), excerpt); err != nil {
		return &StageError{Stage: StageSource, Path: ws.SourceExcerpt(), Err: err}
	}

	o, err := r.outline(ctx, doc.Text, excerpt)
	if err != nil {
		se := &StageError{Stage: StageOutline, Path: ws.OutlineJSON(), Err: err}
		var extractErr *outline.ExtractionError
		if errors.As(err, &extractErr) && extractErr.ResponsePath != "" {
			se.Path = extractErr.ResponsePath
		}
		return se
	}
	if err := r.transition(StateOutlineReady); err != nil {
		return err
	}

	m, err := manifest.Build(o)
	if err != nil {
		return &StageError{Stage: StageManifest, Path: ws.OutlineJSON(), Err: err}
	}
	if err := manifest.Save(ws.ManifestJSON(), m); err != nil {
		return &StageError{Stage: StageManifest, Path: ws.ManifestJSON(), Err: err}
	}
	if err := manifest.SaveFlat(ws.ManifestFlat(), m); err != nil {
		return &StageError{Stage: StageManifest, Path: ws.ManifestFlat(), Err: err}
	}
	r.log.Log("Manifest built: %d sections", len(m.Nodes))
	if err := r.pruneSections(m); err != nil {
		return &StageError{Stage: StageManifest, Path: ws.StateDB(), Err: err}
	}
	if err := r.transition(StateManifestBuilt); err != nil {
		return err
	}

	if err := r.sections(ctx, m, excerpt); err != nil {
		return err
	}
	if err := r.transition(StateSectionsComplete); err != nil {
		return err
	}

	docPath := ws.Document(r.run.DocumentName)
	r.sum.Document = docPath
	res, err := assemble.Write(m, ws, docPath)
	if err != nil {
		return &StageError{Stage: StageAssembly, Path: docPath, Err: err}
	}
	r.sum.Missing = res.Missing
	if len(res.Missing) > 0 {
		r.log.Warn("Assembled without %d missing section(s): %v", len(res.Missing), res.Missing)
	}
	if err := r.ledger.PutArtifact(&state.Artifact{
		Key:         state.KeyDocument,
		Kind:        state.KindDocument,
		Path:        ws.Rel(docPath),
		Status:      state.StatusGenerated,
		ContentHash: state.HashContent(res.Content),
		RunID:       r.record.ID,
	}); err != nil {
		return err
	}
	r.log.Log("Assembled %s (%d sections)", ws.Rel(docPath), len(res.Included))
	if err := r.transition(StateAssembled); err != nil {
		return err
	}

	final, err := r.review(ctx, docPath, excerpt)
	if err != nil {
		return err
	}

	if r.run.HTML {
		htmlPath := workspace.HTMLPath(docPath)
		if err := assemble.WriteHTML(m.DocumentTitle(), docPath, htmlPath); err != nil {
			return &StageError{Stage: StageAssembly, Path: htmlPath, Err: err}
		}
		r.sum.HTML = htmlPath
		r.log.Log("Rendered %s", ws.Rel(htmlPath))
	}

	return r.transition(final)
}

// outline returns the outline for this run: the saved one when it came
// from the oracle, a placeholder in degraded mode, or a fresh synthesis.
// Force only means regenerate through the oracle, so a degraded run keeps
// an oracle outline even when forced.
func (r *runner) outline(ctx context.Context, text, excerpt string) (*outline.Outline, error) {
	path := r.ws.OutlineJSON()

	if (!r.run.Force || r.sum.Degraded) && workspace.Exists(path) {
		existing, err := outline.Load(path)
		switch {
		case err != nil:
			r.log.Warn("Existing outline unreadable, regenerating: %v", err)
		case !existing.Placeholder:
			r.log.Log("Outline already present, skipping")
			return existing, nil
		}
	}

	if r.sum.Degraded {
		o := outline.Placeholder(text, "")
		if err := outline.Save(path, o); err != nil {
			return nil, err
		}
		r.log.Log("Placeholder outline from source headings: %d nodes", o.Count())
		return o, r.recordOutline(state.StatusPlaceholder)
	}

	s := &outline.Synthesizer{
		Oracle:    r.oracle,
		Model:     r.run.Model,
		Workspace: r.ws,
		Log:       r.log,
	}
	o, err := s.Synthesize(ctx, excerpt)
	if err != nil {
		return nil, err
	}
	return o, r.recordOutline(state.StatusGenerated)
}

func (r *runner) recordOutline(status state.ArtifactStatus) error {
	content, _, err := workspace.ReadFile(r.ws.OutlineJSON())
	if err != nil {
		return err
	}
	return r.ledger.PutArtifact(&state.Artifact{
		Key:         state.KeyOutline,
		Kind:        state.KindOutline,
		Path:        r.ws.Rel(r.ws.OutlineJSON()),
		Status:      status,
		ContentHash: state.HashContent(content),
		RunID:       r.record.ID,
	})
}

// pruneSections drops ledger entries for sections the manifest no longer
// has. The files stay on disk; assembly only reads manifest nodes.
func (r *runner) pruneSections(m *manifest.Manifest) error {
	entries, err := r.ledger.ListArtifacts(state.KindSection)
	if err != nil {
		return err
	}
	for _, a := range entries {
		known := false
		for _, n := range m.Nodes {
			if state.SectionKey(n.Slug) == a.Key {
				known = true
				break
			}
		}
		if known {
			continue
		}
		if err := r.ledger.DeleteArtifact(a.Key); err != nil {
			return err
		}
		r.log.Log("Dropped ledger entry for removed section %s", a.Path)
	}
	return nil
}

func (r *runner) sections(ctx context.Context, m *manifest.Manifest, excerpt string) error {
	gen := &section.Generator{
		Oracle:    r.oracle,
		Model:     r.run.Model,
		Workspace: r.ws,
		Ledger:    r.ledger,
		Log:       r.log,
		RunID:     r.record.ID,
		Excerpt:   excerpt,
		Force:     r.run.Force,
		Degraded:  r.sum.Degraded,
		Reason:    r.sum.Reason,
		OnSection: func(i, total int, res section.Result) {
			switch res.Outcome {
			case section.OutcomeGenerated:
				r.sum.Generated++
			case section.OutcomeSkipped:
				r.sum.Skipped++
			case section.OutcomePlaceholder:
				r.sum.Placeholders++
			}
			ev := Event{
				Type:    EventSection,
				Stage:   StageSections,
				Slug:    res.Slug,
				Index:   i,
				Total:   total,
				Outcome: string(res.Outcome),
			}
			if n := m.Node(res.Slug); n != nil {
				ev.Title = n.Label + " " + n.Title
			}
			r.emit(ev)
		},
	}

	done, err := gen.Run(ctx, m)
	if err == nil {
		return nil
	}

	se := &StageError{Stage: StageSections, Err: err}
	var genErr *section.GenerationError
	if errors.As(err, &genErr) {
		se.Slug = genErr.Slug
		se.Path = genErr.ResponsePath
	} else if len(done) < len(m.GenerationOrder) {
		if n := m.Node(m.GenerationOrder[len(done)]); n != nil {
			se.Slug = n.Slug
			se.Path = r.ws.Section(n.FileName())
		}
	}
	return se
}

// review runs or skips the consistency pass and returns the final state.
func (r *runner) review(ctx context.Context, docPath, excerpt string) (State, error) {
	switch {
	case r.run.NoReview:
		r.log.Log("Review disabled")
		return StateReviewSkipped, nil
	case r.sum.Degraded:
		r.log.Log("Review skipped (%s)", r.sum.Reason)
		return StateReviewSkipped, nil
	}
	// Review failures are soft, so a stop has to be caught before the call.
	if r.stop.ShouldStop() {
		return "", &StageError{Stage: StageReview, Path: docPath, Err: ErrStopped}
	}

	rv := &review.Reviewer{
		Oracle:    r.oracle,
		Model:     r.run.Model,
		Workspace: r.ws,
		Ledger:    r.ledger,
		Log:       r.log,
		RunID:     r.record.ID,
		Excerpt:   excerpt,
		Force:     r.run.Force,
	}
	res, err := rv.Review(ctx, docPath)
	if err != nil {
		return "", &StageError{Stage: StageReview, Path: docPath, Err: err}
	}
	r.sum.Review = res
	if !res.Reviewed {
		r.emit(Event{Type: EventWarning, Stage: StageReview, Message: "review skipped: " + res.Reason})
		return StateReviewSkipped, nil
	}
	return StateReviewed, nil
}

func (r *runner) transition(s State) error {
	r.sum.State = s
	r.record.State = string(s)
	if err := r.ledger.UpdateRunState(r.record.ID, string(s)); err != nil {
		return err
	}
	r.log.Log("State %s", s)
	r.emit(Event{Type: EventState, State: s})
	return nil
}

// finish stores usage and the outcome on the run record.
func (r *runner) finish(runErr error) {
	if r.counter != nil {
		r.sum.Calls = r.counter.Calls()
	}
	if tracker := oracle.TrackerOf(r.oracle); tracker != nil {
		r.sum.TokensIn, r.sum.TokensOut = tracker.Total()
		r.sum.Cost = tracker.Cost()
	}
	r.sum.Elapsed = time.Since(r.start)

	r.record.OracleCalls = r.sum.Calls
	r.record.InputTokens = r.sum.TokensIn
	r.record.OutputTokens = r.sum.TokensOut
	if runErr != nil {
		r.record.Error = runErr.Error()
		if errors.Is(runErr, ErrStopped) {
			r.log.Warn("Stopped by signal; rerun to resume")
		} else {
			r.log.Error("%v", runErr)
		}
	}
	if err := r.ledger.FinishRun(r.record); err != nil {
		r.log.Error("Record run: %v", err)
	}

	r.log.Log("Run finished in %s: state %s, %d oracle call(s)", r.sum.Elapsed.Round(time.Millisecond), r.sum.State, r.sum.Calls)
	r.emit(Event{Type: EventDone, State: r.sum.State, Err: runErr})
}

// emit stamps usage counters on ev and sends it.
func (r *runner) emit(ev Event) {
	if r.emitter == nil {
		return
	}
	if r.counter != nil {
		ev.Calls = r.counter.Calls()
	}
	if tracker := oracle.TrackerOf(r.oracle); tracker != nil {
		ev.TokensIn, ev.TokensOut = tracker.Total()
		ev.Cost = tracker.Cost()
	}
	ev.Elapsed = time.Since(r.start)
	r.emitter.Emit(ev)
}
