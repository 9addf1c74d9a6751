// Package source loads the source document in any supported format and
// reduces it to the plain text shared by every prompt.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is a loaded source document.
type Document struct {
	// Path is the file the document was read from.
	Path string
	// Format is the loader used: markdown, text, html, pdf or docx.
	Format string
	// Text is the full document as Markdown-flavored plain text.
	Text string
}

// Stem returns the file name without directory or extension.
func (d *Document) Stem() string {
	return Stem(d.Path)
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatFor returns the loader name used for path.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	default:
		// Unknown extensions are read as text
		return "text"
	}
}

// Load reads path with the loader matching its extension.
func Load(path string) (*Document, error) {
	format := FormatFor(path)

	var (
		text string
		err  error
	)
	switch format {
	case "html":
		text, err = loadHTML(path)
	case "pdf":
		text, err = loadPDF(path)
	case "docx":
		text, err = loadDOCX(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s source %s: %w", format, path, err)
	}

	return &Document{
		Path:   path,
		Format: format,
		Text:   normalizeNewlines(text),
	}, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// headingPrefix renders a Markdown ATX heading marker for level 1-6.
func headingPrefix(level int) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " "
}
