// Package dense maintains the optional vector index over chunk embeddings.
//
// A build embeds every chunk of a project (or of the whole corpus), stores
// the vectors in an exact inner-product index and persists two artifacts in
// the storage directory:
//
//   - dense.index: binary header (magic, version, build id, dimension,
//     count) followed by little-endian float32 rows
//   - dense.mapping.json: row position to chunk id, tagged with the same
//     build id
//
// The artifacts are replaced by rename, mapping first. A reader that sees
// different build ids in the two files treats the index as absent, so a
// search never mixes rows from two builds.
//
// Builds are serialized within a process by a mutex and across processes by
// a file lock (dense.lock). A build that cannot take the lock before the
// lock timeout reports "dense build already running".
//
// Searches never fail for runtime reasons: a disabled, missing or corrupt
// index, or a failed query embedding, yields an empty result. Only a
// missing storage directory is reported as an error.
//
// # Build tags
//
// Building with -tags nodense compiles the package without index support;
// every build then reports "index library not installed" and every search
// is empty.
package dense
