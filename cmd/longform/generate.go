package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/pipeline"
	"github.com/ShayCichocki/longform/internal/source"
	"github.com/ShayCichocki/longform/internal/tui"
	"github.com/ShayCichocki/longform/internal/workspace"
)

var (
	genModel        string
	genStrategy     string
	genDryRun       bool
	genForce        bool
	genNoReview     bool
	genExcerptLines int
	genExcerptChars int
	genHTML         bool
	genTUI          bool
	genTimeout      time.Duration
	genDocument     string
)

var generateCmd = &cobra.Command{
	Use:     "generate <source>",
	Aliases: []string{"run"},
	Short:   "Expand a source document into a long document",
	Long: `Generate a long document from a source document.

Stages (each saved before the next starts):
  1. Outline: one request turns the source excerpt into a JSON outline
  2. Manifest: the outline is flattened into numbered, addressable sections
  3. Sections: one request per section, parents before children
  4. Assembly: title, table of contents and all sections in document order
  5. Review: one request rewrites the document for consistency (optional)

Completed outline and sections are reused on the next run; use --force to
regenerate them. Without a usable backend, or with --dry-run, placeholders
are written so the structure can be inspected.

Examples:
  longform generate requirements.md
  longform generate requirements.md --strategy cli --no-review
  longform generate notes.pdf --dry-run
  longform run requirements.md --tui --html`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genModel, "model", "", "Model passed to the backend (default from config)")
	f.StringVar(&genStrategy, "strategy", "", "Backend: auto, api, cli, openai or ollama (default from config)")
	f.BoolVar(&genDryRun, "dry-run", false, "Write placeholders without calling a backend")
	f.BoolVar(&genForce, "force", false, "Regenerate the outline and every section")
	f.BoolVar(&genNoReview, "no-review", false, "Skip the consistency review")
	f.IntVar(&genExcerptLines, "excerpt-lines", 0, "Source lines included in every request (default from config)")
	f.IntVar(&genExcerptChars, "excerpt-chars", 0, "Character cap on the source excerpt, 0 for none")
	f.BoolVar(&genHTML, "html", false, "Also render the document as HTML")
	f.BoolVar(&genTUI, "tui", false, "Show a progress display instead of log lines")
	f.DurationVar(&genTimeout, "timeout", 0, "Abort the run after this long (e.g. 30m), 0 for none")
	f.StringVar(&genDocument, "document", "", "File name of the generated document (default document.md)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Oracle.Model = genModel
	}
	if flags.Changed("strategy") {
		cfg.Oracle.Strategy = genStrategy
	}
	if flags.Changed("excerpt-lines") {
		cfg.Generation.ExcerptLines = genExcerptLines
	}
	if flags.Changed("excerpt-chars") {
		cfg.Generation.ExcerptChars = genExcerptChars
	}
	if flags.Changed("timeout") {
		cfg.Generation.Timeout = genTimeout
	}
	if flags.Changed("document") {
		cfg.Generation.DocumentName = genDocument
	}
	if genHTML {
		cfg.Generation.HTML = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	project, err := projectRoot()
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	src, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	rc := pipeline.NewRunConfig(cfg, project, src)
	rc.OutputDir = flagOut
	rc.DryRun = genDryRun
	rc.Force = genForce
	if genNoReview {
		rc.NoReview = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Generation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Generation.Timeout)
		defer cancel()
	}

	var (
		sum    *pipeline.Summary
		runErr error
	)
	if genTUI && !stdoutIsTerminal() {
		printStatus("⚠", "--tui needs a terminal; printing log lines instead", color.FgYellow)
		genTUI = false
	}
	if genTUI {
		sum, runErr = generateWithTUI(ctx, cfg, rc)
	} else {
		sum, runErr = pipeline.New(rc, pipeline.WithSettings(cfg), pipeline.WithConsole(os.Stderr)).Run(ctx)
	}

	printSummary(sum, runErr)
	if runErr != nil && errors.Is(runErr, context.DeadlineExceeded) {
		return fmt.Errorf("run timed out after %s: %w", cfg.Generation.Timeout, runErr)
	}
	return runErr
}

// generateWithTUI runs the pipeline in the background and drives the
// progress display from its events.
func generateWithTUI(ctx context.Context, cfg *config.Config, rc pipeline.RunConfig) (*pipeline.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws := workspace.New(rc.Root(source.Stem(rc.SourcePath)))
	emitter := pipeline.NewEmitter(256)
	prog, app := tui.NewGenerateProgram(filepath.Base(rc.SourcePath))
	app.SetStopHandler(func() error {
		return pipeline.SendStop(ws.StopSignal())
	})

	type result struct {
		sum *pipeline.Summary
		err error
	}
	done := make(chan result, 1)

	go tui.Forward(prog, emitter.Events())
	go func() {
		sum, err := pipeline.New(rc, pipeline.WithSettings(cfg), pipeline.WithEmitter(emitter)).Run(ctx)
		prog.Send(tui.DoneMsg{Summary: sum, Err: err})
		done <- result{sum, err}
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("progress display: %w", err)
	}

	// Quitting the display before the run ends cancels the current call.
	cancel()
	r := <-done
	return r.sum, r.err
}

func printSummary(sum *pipeline.Summary, runErr error) {
	if sum == nil {
		return
	}

	fmt.Println()
	switch {
	case runErr != nil && errors.Is(runErr, pipeline.ErrStopped):
		printStatus("■", fmt.Sprintf("Stopped at %s; rerun to resume", sum.State), color.FgYellow)
	case runErr != nil:
		printStatus("✗", fmt.Sprintf("Failed at %s: %v", sum.State, runErr), color.FgRed)
	case sum.Degraded:
		printStatus("⚠", fmt.Sprintf("Placeholders only (%s)", sum.Reason), color.FgYellow)
	default:
		printStatus("✓", fmt.Sprintf("Finished: %s", sum.State), color.FgGreen)
	}

	if sum.Document != "" && runErr == nil {
		fmt.Printf("  Document:  %s\n", sum.Document)
	}
	if sum.HTML != "" {
		fmt.Printf("  HTML:      %s\n", sum.HTML)
	}
	fmt.Printf("  Output:    %s\n", sum.Root)
	fmt.Printf("  Sections:  %d generated, %d reused, %d placeholders\n", sum.Generated, sum.Skipped, sum.Placeholders)
	if sum.Review.Reason != "" {
		fmt.Printf("  Review:    skipped (%s)\n", sum.Review.Reason)
	} else if sum.Review.Cached {
		fmt.Printf("  Review:    reused\n")
	}
	fmt.Printf("  Oracle:    %s, %d call(s)\n", sum.Strategy, sum.Calls)
	if sum.TokensIn+sum.TokensOut > 0 {
		fmt.Printf("  Tokens:    %s in / %s out ($%.2f)\n", formatNumber(int(sum.TokensIn)), formatNumber(int(sum.TokensOut)), sum.Cost)
	}
	fmt.Printf("  Elapsed:   %s\n", formatDuration(sum.Elapsed))
}

// stdoutIsTerminal reports whether stdout is a character device.
func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
