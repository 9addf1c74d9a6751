package source

import (
	"os"
	"strings"

	"golang.org/x/net/html"
)

func loadHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", err
	}

	var blocks []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			blocks = append(blocks, s)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				if t := textContent(n); t != "" {
					add(headingPrefix(level) + t)
				}
				return
			}

			switch n.Data {
			case "script", "style", "nav", "footer", "head", "noscript":
				return
			case "p", "blockquote", "td", "th", "dt", "dd":
				add(textContent(n))
				return
			case "li":
				if t := textContent(n); t != "" {
					add("- " + t)
				}
				return
			case "pre":
				add("```\n" + rawText(n) + "\n```")
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}

	if title := findElement(doc, "title"); title != nil {
		if t := textContent(title); t != "" && !hasHeading(blocks) {
			blocks = append([]string{"# " + t}, blocks...)
		}
	}

	return strings.Join(blocks, "\n\n") + "\n", nil
}

func hasHeading(blocks []string) bool {
	for _, b := range blocks {
		if strings.HasPrefix(b, "# ") {
			return true
		}
	}
	return false
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent returns the collapsed text of n and its descendants.
func textContent(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Trim(buf.String(), "\n")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
