// Package cache defines the disk-backed partition store that maps request
// paths to StoragePath/<partition>/<path> files. Two partition families
// exist: a version-tagged static partition filled during install and an API
// partition reserved for future response caching. The store exposes
// read/write primitives with safe
// semantics (temp file + rename), whole-partition drop for the activation
// purge, and a cross-partition match used by the offline fallback path.
package cache
