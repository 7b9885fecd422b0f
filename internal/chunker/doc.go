// Package chunker divides markdown and HTML documents into heading-scoped,
// size-bounded text chunks for embedding and lexical indexing.
//
// # Basic Usage
//
//	c := chunker.New()
//	for sec := range c.Sections(body) {
//	    fmt.Printf("%s: %d chars\n", sec.Title, utf8.RuneCountInString(sec.Content))
//	}
//
// # Chunking Strategy
//
// Documents are first split at ATX headings of levels 1 to 3 (#, ##, ###).
// Text before the first heading becomes a section titled "Document". Section
// bodies are trimmed and empty bodies produce no chunks.
//
// A body no longer than MaxChars is emitted verbatim. Longer bodies are cut
// into windows of MaxChars characters, each window starting MaxChars-Overlap
// characters after the previous one. The last window always ends on the last
// character of the body, so no trailing content is lost.
//
// Lengths are measured in Unicode code points, never bytes, so windows never
// split a multi-byte character.
//
// # HTML
//
// HTML is converted to plain text before chunking. Script, style and noscript
// subtrees are dropped, block elements are separated by newlines, and <h1> to
// <h3> become markdown headings so HTML documents are sectioned the same way:
//
//	for sec := range c.SectionsHTML(page) {
//	    ...
//	}
//
// The chunker is pure and deterministic: identical input and settings always
// yield identical chunks.
package chunker
