// Package lexical flattens rich-text editor documents to the plain text
// that is embedded and searched.
package lexical

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PlainText returns content unchanged unless it is a serialized editor
// document, in which case the document's text is returned one block per line.
func PlainText(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"root"`) {
		return content
	}
	var doc Document
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil || doc.Root.Type != "root" {
		return content
	}

	var sb strings.Builder
	walk(doc.Root, &sb, 0)
	return strings.TrimSpace(sb.String())
}

func walk(node Node, sb *strings.Builder, depth int) {
	switch node.Type {
	case "text":
		sb.WriteString(node.Text)
	case "linebreak":
		sb.WriteString("\n")
	case "list":
		writeList(node, sb, depth)
	case "tablecell":
		children(node, sb, depth)
		sb.WriteString(" | ")
	case "root", "tablerow":
		for _, child := range node.Children {
			walk(child, sb, depth)
			sb.WriteString("\n")
		}
	default:
		children(node, sb, depth)
		if node.Type == "paragraph" || node.Type == "heading" || node.Type == "quote" {
			sb.WriteString("\n")
		}
	}
}

func children(node Node, sb *strings.Builder, depth int) {
	for _, child := range node.Children {
		walk(child, sb, depth)
	}
}

func writeList(node Node, sb *strings.Builder, depth int) {
	index := 1
	if node.Start > 0 {
		index = node.Start
	}
	for _, item := range node.Children {
		if item.Type != "listitem" {
			continue
		}
		sb.WriteString(strings.Repeat("  ", depth))
		switch node.ListType {
		case "number":
			sb.WriteString(strconv.Itoa(index) + ". ")
			index++
		case "check":
			if item.Checked {
				sb.WriteString("[x] ")
			} else {
				sb.WriteString("[ ] ")
			}
		default:
			sb.WriteString("- ")
		}
		for _, child := range item.Children {
			if child.Type == "list" {
				sb.WriteString("\n")
				writeList(child, sb, depth+1)
				continue
			}
			walk(child, sb, depth)
		}
		sb.WriteString("\n")
	}
}
