package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/longform/internal/outline"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Introduction", "introduction"},
		{"Goals & Non-Goals", "goals-non-goals"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Café Résumé", "cafe-resume"},
		{"Ünïcödé Straße", "unicode-stra-e"},
		{"ﬁle ligature", "file-ligature"},
		{"v2.0 — API", "v2-0-api"},
		{"!!!", "section"},
		{"", "section"},
		{"日本語", "section"},
		{strings.Repeat("ab ", 50), strings.TrimRight(strings.Repeat("ab-", 27)[:80], "-")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(got) > MaxSlugLen {
				t.Errorf("slug longer than %d: %d", MaxSlugLen, len(got))
			}
		})
	}
}

func sampleOutline() *outline.Outline {
	return &outline.Outline{
		DocumentTitle: "Payments",
		Sections: []*outline.Node{
			{Title: "Overview", Summary: "What it is", Subsections: []*outline.Node{
				{Title: "Goals", Summary: "g"},
				{Title: "Overview", Summary: "dup title"},
			}},
			{Title: "Design", Summary: "How", Subsections: []*outline.Node{
				{Title: "Storage", Summary: "s", Subsections: []*outline.Node{
					{Title: "Goals", Summary: "deep dup"},
				}},
			}},
			{Title: "Risks"},
		},
	}
}

func TestBuild(t *testing.T) {
	m, err := Build(sampleOutline())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantSlugs := []string{"overview", "goals", "overview-2", "design", "storage", "goals-2", "risks"}
	wantLabels := []string{"1", "1.1", "1.2", "2", "2.1", "2.1.1", "3"}
	var gotSlugs, gotLabels []string
	for _, n := range m.Nodes {
		gotSlugs = append(gotSlugs, n.Slug)
		gotLabels = append(gotLabels, n.Label)
		if n.Level != len(n.Path) {
			t.Errorf("%s: level %d != len(path) %d", n.Slug, n.Level, len(n.Path))
		}
	}
	if !reflect.DeepEqual(gotSlugs, wantSlugs) {
		t.Errorf("slugs = %v, want %v", gotSlugs, wantSlugs)
	}
	if !reflect.DeepEqual(gotLabels, wantLabels) {
		t.Errorf("labels = %v, want %v", gotLabels, wantLabels)
	}

	wantOrder := []string{"overview", "design", "risks", "goals", "overview-2", "storage", "goals-2"}
	if !reflect.DeepEqual(m.GenerationOrder, wantOrder) {
		t.Errorf("generation order = %v, want %v", m.GenerationOrder, wantOrder)
	}

	deep := m.Node("goals-2")
	if deep == nil {
		t.Fatal("missing node goals-2")
	}
	if !reflect.DeepEqual(deep.Path, []int{1, 0, 0}) {
		t.Errorf("path = %v", deep.Path)
	}
	if deep.ParentSlug != "storage" || deep.ParentLabel != "2.1" {
		t.Errorf("parent = %s/%s", deep.ParentSlug, deep.ParentLabel)
	}
	if !reflect.DeepEqual(deep.Breadcrumbs, []string{"Design", "Storage"}) {
		t.Errorf("breadcrumbs = %v", deep.Breadcrumbs)
	}
	if deep.FileName() != "2-1-1_goals-2.md" {
		t.Errorf("FileName() = %s", deep.FileName())
	}

	overview := m.Node("overview")
	if !reflect.DeepEqual(overview.ChildrenTitles, []string{"Goals", "Overview"}) {
		t.Errorf("children titles = %v", overview.ChildrenTitles)
	}
	if overview.ParentSlug != "" || m.Parent(overview) != nil {
		t.Error("top-level node should have no parent")
	}
	if m.Parent(deep).Slug != "storage" {
		t.Error("Parent() lookup failed")
	}
	if m.DocumentTitle() != "Payments" {
		t.Errorf("DocumentTitle() = %q", m.DocumentTitle())
	}
}

func TestBuild_ParentsBeforeChildren(t *testing.T) {
	m, err := Build(sampleOutline())
	if err != nil {
		t.Fatal(err)
	}

	position := map[string]int{}
	for i, slug := range m.GenerationOrder {
		position[slug] = i
	}
	for _, n := range m.Nodes {
		if n.ParentSlug == "" {
			continue
		}
		if position[n.ParentSlug] >= position[n.Slug] {
			t.Errorf("%s generated before its parent %s", n.Slug, n.ParentSlug)
		}
	}
	// Every level-k node precedes every level-(k+1) node
	for i := 1; i < len(m.GenerationOrder); i++ {
		prev := m.Node(m.GenerationOrder[i-1])
		cur := m.Node(m.GenerationOrder[i])
		if prev.Level > cur.Level {
			t.Errorf("level regression at %d: %s (L%d) before %s (L%d)", i, prev.Slug, prev.Level, cur.Slug, cur.Level)
		}
	}
}

func TestBuild_SlugsUnique(t *testing.T) {
	o := &outline.Outline{}
	for i := 0; i < 5; i++ {
		o.Sections = append(o.Sections, &outline.Node{Title: "Same", Subsections: []*outline.Node{{Title: "Same"}, {Title: "!!"}}})
	}
	m, err := Build(o)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, n := range m.Nodes {
		if seen[n.Slug] {
			t.Errorf("duplicate slug %s", n.Slug)
		}
		seen[n.Slug] = true
	}
	if len(seen) != 15 {
		t.Errorf("expected 15 unique slugs, got %d", len(seen))
	}
	if m.Nodes[1].Slug != "same-2" || m.Nodes[2].Slug != "section" || m.Nodes[5].Slug != "section-2" {
		t.Errorf("unexpected dedup order: %s %s %s", m.Nodes[1].Slug, m.Nodes[2].Slug, m.Nodes[5].Slug)
	}
}

func TestBuild_Empty(t *testing.T) {
	var emptyErr *EmptyManifestError
	if _, err := Build(&outline.Outline{DocumentTitle: "x"}); !errors.As(err, &emptyErr) {
		t.Errorf("expected EmptyManifestError, got %v", err)
	}
	if _, err := Build(nil); !errors.As(err, &emptyErr) {
		t.Errorf("expected EmptyManifestError for nil outline, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	raw := `{"document_title":"T","sections":[{"title":"A","subsections":[{"title":"B"}]}],"vendor_field":1}`
	o, err := outline.Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	m, err := Build(o)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := Save(path, m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	for _, key := range []string{`"toc"`, `"vendor_field"`, `"generation_order"`, `"parent_slug"`, `"children_titles"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("manifest.json missing %s", key)
		}
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Nodes, m.Nodes) {
		t.Errorf("nodes differ after reload")
	}
	if loaded.Node("b") == nil || loaded.Node("b").ParentSlug != "a" {
		t.Error("index not rebuilt on load")
	}

	flatPath := filepath.Join(dir, "manifest.flat.yaml")
	if err := SaveFlat(flatPath, m); err != nil {
		t.Fatalf("SaveFlat failed: %v", err)
	}
	flat, _ := os.ReadFile(flatPath)
	if !strings.Contains(string(flat), "document_title: T") {
		t.Errorf("flat manifest missing title:\n%s", flat)
	}
	nodes, err := LoadFlat(flatPath)
	if err != nil {
		t.Fatalf("LoadFlat failed: %v", err)
	}
	if len(nodes) != 2 || nodes[1].Label != "1.1" || !reflect.DeepEqual(nodes[1].Path, []int{0, 0}) {
		t.Errorf("unexpected flat nodes %+v", nodes)
	}
}
