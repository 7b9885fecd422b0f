package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// skipped elements are dropped along with everything inside them
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true,
	atom.Ol: true, atom.Tr: true, atom.Table: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true, atom.Nav: true,
	atom.Main: true, atom.Aside: true, atom.Blockquote: true, atom.Pre: true,
	atom.Hr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Title: true, atom.Body: true,
}

var headings = map[atom.Atom]string{
	atom.H1: "# ",
	atom.H2: "## ",
	atom.H3: "### ",
}

// HTMLToText converts an HTML document to plain text.
// Lines are trimmed and runs of three or more newlines collapse to one blank line.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))

	var b strings.Builder
	depth := 0 // nesting inside skipped elements
	inHeading := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeText(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if tt == html.StartTagToken {
					depth++
				}
				continue
			}
			if depth > 0 {
				continue
			}
			if prefix, ok := headings[a]; ok {
				blankLine(&b)
				b.WriteString(prefix)
				inHeading = true
			} else if blocks[a] {
				newline(&b)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if depth > 0 {
					depth--
				}
				continue
			}
			if depth > 0 {
				continue
			}
			if _, ok := headings[a]; ok {
				b.WriteString("\n\n")
				inHeading = false
			} else if blocks[a] {
				newline(&b)
			}

		case html.TextToken:
			if depth > 0 {
				continue
			}
			text := string(z.Text())
			if inHeading {
				text = strings.ReplaceAll(text, "\n", " ")
			}
			b.WriteString(text)
		}
	}
}

// newline ends the current line unless it is already ended
func newline(b *strings.Builder) {
	if b.Len() > 0 && b.String()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
}

// blankLine makes sure the next text starts after an empty line
func blankLine(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	newline(b)
	if s := b.String(); len(s) < 2 || s[len(s)-2] != '\n' {
		b.WriteByte('\n')
	}
}

func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
