package outline

import (
	"fmt"

	"github.com/ShayCichocki/longform/internal/source"
)

// DefaultTitle is used when neither the oracle nor the source names the document.
const DefaultTitle = "Generated Document"

// Placeholder derives an outline from the Markdown headings of the source
// text without calling the oracle. A single top-level heading becomes the
// document title and its children the sections. Text without headings
// yields one "Overview" section.
func Placeholder(text, fallbackTitle string) *Outline {
	if fallbackTitle == "" {
		fallbackTitle = DefaultTitle
	}
	o := &Outline{DocumentTitle: fallbackTitle, Placeholder: true}

	roots := source.Headings(text)
	if len(roots) == 1 && len(roots[0].Children) > 0 {
		o.DocumentTitle = roots[0].Title
		roots = roots[0].Children
	}

	o.Sections = fromHeadings(roots, nil)
	if len(o.Sections) == 0 {
		o.Sections = []*Node{{
			Title:   "Overview",
			Summary: "Overview of the source material.",
		}}
	}
	return o
}

func fromHeadings(hs []*source.Heading, parent *source.Heading) []*Node {
	var nodes []*Node
	for _, h := range hs {
		summary := fmt.Sprintf("Covers %q from the source material.", h.Title)
		if parent != nil {
			summary = fmt.Sprintf("Covers %q within %q.", h.Title, parent.Title)
		}
		nodes = append(nodes, &Node{
			Title:       h.Title,
			Summary:     summary,
			Subsections: fromHeadings(h.Children, h),
		})
	}
	return nodes
}
