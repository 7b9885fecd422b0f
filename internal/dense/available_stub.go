//go:build nodense

package dense

// Available reports whether dense search is compiled in.
// This build was made with the nodense tag.
const Available = false
