package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"brief.md", "markdown"},
		{"brief.MARKDOWN", "markdown"},
		{"notes.txt", "text"},
		{"page.htm", "html"},
		{"page.HTML", "html"},
		{"paper.pdf", "pdf"},
		{"memo.docx", "docx"},
		{"README", "text"},
		{"data.rst", "text"},
	}
	for _, tt := range tests {
		if got := FormatFor(tt.path); got != tt.want {
			t.Errorf("FormatFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoad_Markdown(t *testing.T) {
	path := writeFile(t, "brief.md", "# Brief\r\n\r\nBody line.\r\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Format != "markdown" {
		t.Errorf("Format = %s", doc.Format)
	}
	if doc.Text != "# Brief\n\nBody line.\n" {
		t.Errorf("unexpected text %q", doc.Text)
	}
	if doc.Stem() != "brief" {
		t.Errorf("Stem() = %s", doc.Stem())
	}
}

func TestLoad_UnknownExtensionAsText(t *testing.T) {
	path := writeFile(t, "brief.rst", "Plain words\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Format != "text" || doc.Text != "Plain words\n" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_HTML(t *testing.T) {
	input := `<!DOCTYPE html>
<html>
<head><title>Ignored Title</title><style>body{}</style></head>
<body>
<nav>Home | About</nav>
<h1>Payments Service</h1>
<p>Handles   card
payments.</p>
<h2>Scope</h2>
<ul><li>Refunds</li><li>Chargebacks</li></ul>
<script>alert(1)</script>
<pre>code line 1
code line 2</pre>
</body>
</html>`
	path := writeFile(t, "service.html", input)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, want := range []string{
		"# Payments Service",
		"Handles card payments.",
		"## Scope",
		"- Refunds",
		"- Chargebacks",
		"```\ncode line 1\ncode line 2\n```",
	} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("expected %q in:\n%s", want, doc.Text)
		}
	}
	for _, unwanted := range []string{"alert(1)", "Home | About", "body{}", "Ignored Title"} {
		if strings.Contains(doc.Text, unwanted) {
			t.Errorf("unexpected %q in:\n%s", unwanted, doc.Text)
		}
	}
}

func TestLoad_HTMLTitleFallback(t *testing.T) {
	path := writeFile(t, "page.html", "<html><head><title>Only Title</title></head><body><p>Text</p></body></html>")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.HasPrefix(doc.Text, "# Only Title\n\nText") {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestLoad_DOCX(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("First paragraph")
	w.AddParagraph().AddText("Second paragraph")

	path := filepath.Join(t.TempDir(), "memo.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		t.Fatalf("write docx: %v", err)
	}
	f.Close()

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.Contains(doc.Text, "First paragraph\n\nSecond paragraph") {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestLoad_InvalidPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid pdf")
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLines int
		maxChars int
		want     string
	}{
		{"fewer lines than limit", "a\nb\nc\n", 10, 0, "a\nb\nc"},
		{"cut at line limit", "a\nb\nc\nd\n", 2, 0, "a\nb"},
		{"no trailing newline", "a\nb", 5, 0, "a\nb"},
		{"char cap", "abcdef\nghi", 10, 4, "abcd"},
		{"char cap respects runes", "héllo wörld", 0, 7, "héllo w"},
		{"char cap larger than text", "short", 0, 100, "short"},
		{"empty", "", 5, 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.text, tt.maxLines, tt.maxChars); got != tt.want {
				t.Errorf("Excerpt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerpt_DefaultLines(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < DefaultExcerptLines+50; i++ {
		sb.WriteString("line\n")
	}
	got := Excerpt(sb.String(), 0, 0)
	if n := strings.Count(got, "\n") + 1; n != DefaultExcerptLines {
		t.Errorf("expected %d lines, got %d", DefaultExcerptLines, n)
	}
}

func TestHeadings(t *testing.T) {
	input := `# Title

Intro.

## Section *A*

### Sub A1

## Section B

#### Deep under B

Setext Heading
--------------
`
	hs := Headings(input)
	if len(hs) != 1 {
		t.Fatalf("expected 1 root heading, got %d", len(hs))
	}
	root := hs[0]
	if root.Title != "Title" || root.Level != 1 {
		t.Errorf("unexpected root %+v", root)
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(root.Children))
	}
	if root.Children[0].Title != "Section A" {
		t.Errorf("inline markup not stripped: %q", root.Children[0].Title)
	}
	if len(root.Children[0].Children) != 1 || root.Children[0].Children[0].Title != "Sub A1" {
		t.Errorf("unexpected children of Section A: %+v", root.Children[0].Children)
	}
	if len(root.Children[1].Children) != 1 || root.Children[1].Children[0].Level != 4 {
		t.Errorf("deep heading should nest under Section B")
	}
	if root.Children[2].Title != "Setext Heading" {
		t.Errorf("unexpected setext heading %q", root.Children[2].Title)
	}

	if Title(input) != "Title" {
		t.Errorf("Title() = %q", Title(input))
	}
	if Title("no headings here") != "" {
		t.Error("expected empty title")
	}
}
