package assemble

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ShayCichocki/longform/internal/workspace"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
		parser.WithAttribute(),
	),
	goldmark.WithRendererOptions(
		// Anchors are raw <a id> tags
		gmhtml.WithUnsafe(),
	),
)

// RenderHTML converts Markdown to a standalone HTML page.
func RenderHTML(title, md string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// WriteHTML renders the document at mdPath into htmlPath.
func WriteHTML(title, mdPath, htmlPath string) error {
	md, ok, err := workspace.ReadFile(mdPath)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s not found", mdPath)
	}
	page, err := RenderHTML(title, md)
	if err != nil {
		return err
	}
	return workspace.WriteFile(htmlPath, page)
}
