// Package workspace owns the on-disk layout of one generation run.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the default parent of per-source output directories.
const DirName = ".longform"

// Workspace is the output directory of one source document.
type Workspace struct {
	root string
}

// New returns a workspace rooted at root. Nothing is created until Init.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// DefaultRoot returns <project>/<outputDir>/<stem>.
func DefaultRoot(project, outputDir, stem string) string {
	if outputDir == "" {
		outputDir = DirName
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(project, outputDir)
	}
	return filepath.Join(outputDir, stem)
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Init creates the directory tree.
func (w *Workspace) Init() error {
	dirs := []string{
		w.path("source"),
		w.path("prompts", "sections"),
		w.path("responses", "sections"),
		w.SectionsDir(),
		w.path("logs"),
		w.path("signals"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Workspace) path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

func (w *Workspace) SourceFull() string    { return w.path("source", "full.md") }
func (w *Workspace) SourceExcerpt() string { return w.path("source", "excerpt.md") }
func (w *Workspace) OutlineJSON() string   { return w.path("outline.json") }
func (w *Workspace) ManifestJSON() string  { return w.path("manifest.json") }
func (w *Workspace) ManifestFlat() string  { return w.path("manifest.flat.yaml") }
func (w *Workspace) SectionsDir() string   { return w.path("sections") }
func (w *Workspace) TOC() string           { return w.path("toc.md") }
func (w *Workspace) StateDB() string       { return w.path("state.db") }
func (w *Workspace) LogFile() string       { return w.path("logs", "longform.log") }
func (w *Workspace) StopSignal() string    { return w.path("signals", "stop") }

// Prompt returns the path of a stage prompt such as "outline.md".
func (w *Workspace) Prompt(name string) string { return w.path("prompts", name) }

// Response returns the path of a raw stage response such as "outline.md".
func (w *Workspace) Response(name string) string { return w.path("responses", name) }

// SectionPrompt returns the prompt path for a section artifact file name.
func (w *Workspace) SectionPrompt(file string) string {
	return w.path("prompts", "sections", file)
}

// SectionResponse returns the raw response path for a section artifact file name.
func (w *Workspace) SectionResponse(file string) string {
	return w.path("responses", "sections", file)
}

// Section returns the artifact path for a section file name.
func (w *Workspace) Section(file string) string {
	return filepath.Join(w.SectionsDir(), file)
}

// Document returns the canonical document path; name defaults to document.md.
func (w *Workspace) Document(name string) string {
	if name == "" {
		name = "document.md"
	}
	return w.path(name)
}

// BackupPath returns the pre-review backup path for a document:
// a trailing ".md" becomes ".initial.md".
func BackupPath(doc string) string {
	if strings.HasSuffix(doc, ".md") {
		return strings.TrimSuffix(doc, ".md") + ".initial.md"
	}
	return doc + ".initial.md"
}

// HTMLPath returns the HTML rendering path for a document.
func HTMLPath(doc string) string {
	return strings.TrimSuffix(doc, filepath.Ext(doc)) + ".html"
}

// Rel returns path relative to the workspace root, or path unchanged.
func (w *Workspace) Rel(path string) string {
	if rel, err := filepath.Rel(w.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// WriteFile replaces path with content in one step: the data goes to a
// temporary sibling which is then renamed over path.
func WriteFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// ReadFile returns the content of path and whether it exists.
func ReadFile(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CopyOnce copies src to dst unless dst already exists. It reports whether
// a copy was made.
func CopyOnce(src, dst string) (bool, error) {
	if Exists(dst) {
		return false, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", src, err)
	}
	if err := WriteFile(dst, string(data)); err != nil {
		return false, err
	}
	return true, nil
}
