package section

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/longform/internal/manifest"
)

// HeadingToken returns the Markdown heading marker for a node at level:
// level+1 hashes, capped at six.
func HeadingToken(level int) string {
	n := level + 1
	if n > 6 {
		n = 6
	}
	if n < 1 {
		n = 1
	}
	return strings.Repeat("#", n)
}

// Heading returns the opening line every section artifact starts with.
func Heading(n *manifest.Node) string {
	return fmt.Sprintf("%s %s {#%s}", HeadingToken(n.Level), n.Title, n.Slug)
}

// fidelity describes the expected depth of writing for a level.
func fidelity(level int) string {
	switch {
	case level <= 1:
		return "This is a top-level section: narrate scope, goals and the main themes. Stay at the level of intent and structure; leave mechanics to the subsections."
	case level == 2:
		return "This is a second-level section: describe responsibilities, behavior and the decisions that shape it, with enough specifics that a reader knows what must be built."
	default:
		return "This is a detailed section: give concrete, actionable detail such as data fields, rules, edge cases, limits and examples."
	}
}

// BuildPrompt returns the drafting request for one node.
func BuildPrompt(n *manifest.Node, parent *manifest.Node, excerpt string) string {
	var sb strings.Builder

	sb.WriteString("You are writing one section of a long, hierarchically structured document.\n\n")

	sb.WriteString("## Section\n\n")
	fmt.Fprintf(&sb, "- Heading: %s\n", Heading(n))
	fmt.Fprintf(&sb, "- Outline number: %s\n", n.Label)
	crumbs := append(append([]string{}, n.Breadcrumbs...), n.Title)
	fmt.Fprintf(&sb, "- Position: %s\n", strings.Join(crumbs, " > "))
	if n.Summary != "" {
		fmt.Fprintf(&sb, "- Section summary: %s\n", n.Summary)
	}
	if parent != nil && parent.Summary != "" {
		fmt.Fprintf(&sb, "- Parent section (%s %s) summary: %s\n", parent.Label, parent.Title, parent.Summary)
	}

	if len(n.ChildrenTitles) > 0 {
		sb.WriteString("\n## Planned Subsections\n\n")
		sb.WriteString("These are written separately. Introduce them briefly where useful but do not write their content.\n\n")
		for _, title := range n.ChildrenTitles {
			fmt.Fprintf(&sb, "- %s\n", title)
		}
	}

	sb.WriteString("\n## Instructions\n\n")
	fmt.Fprintf(&sb, "1. Open with exactly this heading line: `%s`\n", Heading(n))
	fmt.Fprintf(&sb, "2. %s\n", fidelity(n.Level))
	fmt.Fprintf(&sb, "3. Do not add headings deeper than `%s`; subsections are written separately.\n", HeadingToken(n.Level))
	sb.WriteString("4. Stay faithful to the source material. Where it is silent, make reasonable decisions and state them plainly.\n")
	sb.WriteString("5. Close with a short \"Key Considerations\" list.\n")
	sb.WriteString("6. Output Markdown only, without code fences around the whole answer and without commentary.\n")

	sb.WriteString("\n## Source Material\n\n")
	sb.WriteString(excerpt)
	sb.WriteString("\n")

	return sb.String()
}
