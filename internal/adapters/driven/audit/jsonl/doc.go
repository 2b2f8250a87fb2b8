// Package jsonl provides an append-only audit log stored as JSON lines.
//
// Each entry is one line written with a single write(2) on a file opened
// with O_APPEND, so entries are never rewritten. Reads scan the whole file;
// a truncated trailing line left by a crash is skipped.
package jsonl
