package pipeline

import (
	"path/filepath"

	"github.com/ShayCichocki/longform/internal/config"
	"github.com/ShayCichocki/longform/internal/source"
	"github.com/ShayCichocki/longform/internal/workspace"
)

// RunConfig holds everything one run needs. It is resolved once from
// configuration and flags and not changed afterwards.
type RunConfig struct {
	// ProjectRoot anchors the default output directory.
	ProjectRoot string
	// SourcePath is the document to expand.
	SourcePath string
	// OutputBase is the directory holding one workspace per source
	// (generation.output_dir), relative to ProjectRoot unless absolute.
	OutputBase string
	// OutputDir, when set, is the workspace itself and overrides OutputBase.
	OutputDir string
	// DocumentName is the canonical document file inside the workspace.
	DocumentName string

	Model    string
	Strategy string

	ExcerptLines int
	ExcerptChars int

	DryRun   bool
	Force    bool
	NoReview bool
	HTML     bool
}

// NewRunConfig fills a RunConfig from loaded configuration. Flags are
// applied by the caller afterwards.
func NewRunConfig(cfg *config.Config, projectRoot, sourcePath string) RunConfig {
	return RunConfig{
		ProjectRoot:  projectRoot,
		SourcePath:   sourcePath,
		OutputBase:   cfg.Generation.OutputDir,
		DocumentName: cfg.Generation.DocumentName,
		Model:        cfg.Oracle.Model,
		Strategy:     cfg.Oracle.Strategy,
		ExcerptLines: cfg.Generation.ExcerptLines,
		ExcerptChars: cfg.Generation.ExcerptChars,
		NoReview:     !cfg.Review.Enabled,
		HTML:         cfg.Generation.HTML,
	}
}

// Root returns the workspace directory for a source with the given stem.
func (rc RunConfig) Root(stem string) string {
	if rc.OutputDir != "" {
		if abs, err := filepath.Abs(rc.OutputDir); err == nil {
			return abs
		}
		return rc.OutputDir
	}
	return workspace.DefaultRoot(rc.ProjectRoot, rc.OutputBase, stem)
}

func (rc RunConfig) excerptLines() int {
	if rc.ExcerptLines <= 0 {
		return source.DefaultExcerptLines
	}
	return rc.ExcerptLines
}
