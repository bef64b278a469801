// ABOUTME: Turns agent replies into terminal-friendly text
// ABOUTME: Flattens markdown through goldmark's AST and pulls out service image links

package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText renders markdown as plain text: emphasis markers dropped, list
// items bulleted or numbered, code blocks indented, and link targets shown
// after their label.
func PlainText(markdown string) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	w := &plainWriter{src: src}
	_ = ast.Walk(doc, w.visit)

	return tidy(w.buf.String())
}

type listState struct {
	ordered bool
	next    int
}

type plainWriter struct {
	src       []byte
	buf       bytes.Buffer
	lists     []listState
	linkStart int
}

func (w *plainWriter) indent() string {
	if len(w.lists) <= 1 {
		return ""
	}
	return strings.Repeat("  ", len(w.lists)-1)
}

func (w *plainWriter) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Text:
		if entering {
			w.buf.Write(node.Segment.Value(w.src))
			switch {
			case node.HardLineBreak():
				w.buf.WriteString("\n" + w.indent())
			case node.SoftLineBreak():
				w.buf.WriteByte(' ')
			}
		}

	case *ast.String:
		if entering {
			w.buf.Write(node.Value)
		}

	case *ast.CodeSpan:
		// Children are plain text segments.

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.buf.WriteString(w.indent() + "    ")
				w.buf.Write(bytes.TrimRight(seg.Value(w.src), "\n"))
				w.buf.WriteByte('\n')
			}
			w.buf.WriteByte('\n')
		}
		return ast.WalkSkipChildren, nil

	case *ast.Heading:
		if !entering {
			w.buf.WriteString("\n\n")
		}

	case *ast.Paragraph:
		if !entering {
			if w.inList(n) {
				w.buf.WriteByte('\n')
			} else {
				w.buf.WriteString("\n\n")
			}
		}

	case *ast.TextBlock:
		if !entering {
			w.buf.WriteByte('\n')
		}

	case *ast.List:
		if entering {
			w.lists = append(w.lists, listState{ordered: node.IsOrdered(), next: node.Start})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			if len(w.lists) == 0 {
				w.buf.WriteByte('\n')
			}
		}

	case *ast.ListItem:
		if entering && len(w.lists) > 0 {
			top := &w.lists[len(w.lists)-1]
			w.buf.WriteString(w.indent())
			if top.ordered {
				fmt.Fprintf(&w.buf, "%d. ", top.next)
				top.next++
			} else {
				w.buf.WriteString("- ")
			}
		}

	case *ast.Link:
		if entering {
			w.linkStart = w.buf.Len()
		} else {
			label := w.buf.Bytes()[w.linkStart:]
			if len(node.Destination) > 0 && !bytes.Equal(label, node.Destination) {
				fmt.Fprintf(&w.buf, " (%s)", node.Destination)
			}
		}

	case *ast.Image:
		if entering {
			w.buf.WriteString("[image: ")
		} else {
			fmt.Fprintf(&w.buf, "] %s", node.Destination)
		}

	case *ast.AutoLink:
		if entering {
			w.buf.Write(node.URL(w.src))
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			w.buf.WriteString("----\n\n")
		}

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

// inList reports whether n sits inside a list item.
func (w *plainWriter) inList(n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == ast.KindListItem {
			return true
		}
	}
	return false
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// tidy trims trailing spaces per line and collapses blank line runs.
// Leading indentation is kept for code blocks.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}

var (
	serviceImagePattern = regexp.MustCompile(`(?i)(?:https?://[^\s/]+)?/service_images/\S+\.(?:png|jpg|jpeg|gif|webp)`)
	// emptyLinkPattern catches markdown link shells left behind once their target is removed.
	emptyLinkPattern = regexp.MustCompile(`!?\[[^\]]*\]\(\s*\)`)
)

// ServiceImages removes service image paths from a reply and returns the
// cleaned text along with their absolute URLs, in order. Relative paths
// are resolved against baseURL.
func ServiceImages(reply, baseURL string) (string, []string) {
	matches := serviceImagePattern.FindAllString(reply, -1)
	if len(matches) == 0 {
		return reply, nil
	}

	base := strings.TrimSuffix(baseURL, "/")
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(m, "/") {
			m = base + m
		}
		urls = append(urls, m)
	}

	cleaned := serviceImagePattern.ReplaceAllString(reply, "")
	cleaned = emptyLinkPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned), urls
}
