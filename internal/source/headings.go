package source

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one node of the Markdown heading tree.
type Heading struct {
	Title    string
	Level    int
	Children []*Heading
}

// Headings parses text as Markdown and returns its heading tree. A heading
// nests under the closest preceding heading of a lower level.
func Headings(src string) []*Heading {
	data := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(data))

	root := &Heading{}
	stack := []*Heading{root}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		title := strings.TrimSpace(inlineText(h, data))
		if title == "" {
			continue
		}

		node := &Heading{Title: title, Level: h.Level}
		for len(stack) > 1 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		stack = append(stack, node)
	}

	return root.Children
}

// Title returns the first level-1 heading of src, or "".
func Title(src string) string {
	for _, h := range Headings(src) {
		if h.Level == 1 {
			return h.Title
		}
	}
	return ""
}

func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			buf.Write(v.Value(src))
			if v.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(v.Value)
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return buf.String()
}
