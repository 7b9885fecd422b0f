package chunker

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/ragroute/pkg/types"
)

const (
	// DefaultMaxChars is the default window width in characters
	DefaultMaxChars = 3500

	// DefaultOverlap is the default number of characters shared by adjacent windows
	DefaultOverlap = 250

	// untitled is the title of text that precedes the first heading
	untitled = "Document"
)

// ErrInvalidParams is returned for unusable window settings
var ErrInvalidParams = errors.New("invalid chunker parameters")

var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*\s*$`)

// Chunker splits documents into titled sections
type Chunker struct {
	maxChars int
	overlap  int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithMaxChars sets the maximum chunk length in characters
func WithMaxChars(n int) Option {
	return func(c *Chunker) { c.maxChars = n }
}

// WithOverlap sets the overlap between consecutive windows in characters
func WithOverlap(n int) Option {
	return func(c *Chunker) { c.overlap = n }
}

// New creates a Chunker with default settings overridden by opts.
// Use NewChecked when the options come from user input.
func New(opts ...Option) *Chunker {
	c := &Chunker{maxChars: DefaultMaxChars, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChecked creates a Chunker and validates its settings
func NewChecked(opts ...Option) (*Chunker, error) {
	c := New(opts...)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks 0 <= overlap < maxChars
func (c *Chunker) Validate() error {
	if c.maxChars <= 0 {
		return fmt.Errorf("%w: max chars must be positive, got %d", ErrInvalidParams, c.maxChars)
	}
	if c.overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidParams, c.overlap)
	}
	if c.overlap >= c.maxChars {
		return fmt.Errorf("%w: overlap %d must be smaller than max chars %d", ErrInvalidParams, c.overlap, c.maxChars)
	}
	return nil
}

// MaxChars returns the configured window width
func (c *Chunker) MaxChars() int { return c.maxChars }

// Overlap returns the configured window overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Sections lazily yields the chunks of a markdown or plain-text document
func (c *Chunker) Sections(text string) iter.Seq[types.Section] {
	return func(yield func(types.Section) bool) {
		for _, sec := range splitHeadings(text) {
			body := strings.TrimSpace(sec.Content)
			if body == "" {
				continue
			}
			for piece := range c.windows(body) {
				if !yield(types.Section{Title: sec.Title, Content: piece}) {
					return
				}
			}
		}
	}
}

// SectionsHTML converts an HTML document to text and chunks it
func (c *Chunker) SectionsHTML(html string) iter.Seq[types.Section] {
	return c.Sections(HTMLToText(html))
}

// ChunkDocument chunks a document, choosing the HTML path by file extension
func (c *Chunker) ChunkDocument(path, body string) []types.Section {
	var seq iter.Seq[types.Section]
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		seq = c.SectionsHTML(body)
	default:
		seq = c.Sections(body)
	}

	sections := make([]types.Section, 0)
	for sec := range seq {
		sections = append(sections, sec)
	}
	return sections
}

// windows yields body verbatim when short, otherwise overlapping windows
// whose last element ends at the final character of body.
func (c *Chunker) windows(body string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(body)
		n := len(runes)
		if n <= c.maxChars {
			yield(body)
			return
		}

		step := c.maxChars - c.overlap
		if step <= 0 {
			step = c.maxChars
		}
		for start := 0; ; start += step {
			end := min(start+c.maxChars, n)
			if !yield(string(runes[start:end])) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

// splitHeadings cuts text at level 1-3 headings. Bodies are returned untrimmed.
func splitHeadings(text string) []types.Section {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	sections := make([]types.Section, 0)
	title := untitled
	var body strings.Builder
	inFence := false

	flush := func() {
		sections = append(sections, types.Section{Title: title, Content: body.String()})
		body.Reset()
	}

	for line := range strings.Lines(text) {
		trimmed := strings.TrimRight(line, "\n")
		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
				flush()
				title = m[2]
				continue
			}
		}
		body.WriteString(line)
	}
	flush()

	return sections
}
