// Package gallery keeps the ordered collection of captured images and
// persists it after every change.
//
// Position 0 is the oldest capture. Removing an image shifts every later
// image down by one. Each image carries a stable synthetic ID assigned at
// append time; identity is by ID, so two byte-identical captures are still
// two distinct images.
//
// Persistence is synchronous and best-effort: every Append and Remove writes
// the full ordered list to the Store before returning. A failed write is
// logged and counted, and the in-memory gallery stays authoritative. A
// missing or unreadable collection at Open yields an empty gallery.
//
// Three Store backends are provided: MemoryStore, FileStore (JSON file,
// atomic rename) and SQLiteStore (modernc.org/sqlite).
package gallery
