//go:build !nodense

package dense

// Available reports whether dense search is compiled in
const Available = true
