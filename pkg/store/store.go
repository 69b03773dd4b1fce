package store

import "errors"

// ErrNotExist is returned by ReadFile when the path does not exist.
var ErrNotExist = errors.New("store: file does not exist")

// ErrUnreadable is returned by Reader.Load once its retry budget is
// exhausted. Callers must treat it as a skip-this-cycle signal, never as a
// terminal failure: the producer rewrites the file and the next cycle will
// recover.
var ErrUnreadable = errors.New("store: file unreadable")

// Store is the shared-store capability the coordination core runs against.
// It offers whole-file primitives only: every write replaces the file in
// full, and a write is assumed atomic at the reader's granularity. Partial
// reads can still be observed mid-rewrite; the Reader masks them.
type Store interface {
	// WriteFile replaces the file at path with data, creating it if absent.
	WriteFile(path string, data []byte) error

	// ReadFile returns the full contents of path, or ErrNotExist.
	ReadFile(path string) ([]byte, error)

	// Unlink removes the file at path. Removing a missing file is not an
	// error; assignment and sweep races make that a normal case.
	Unlink(path string) error

	// List returns the file names (not full paths) directly under dir.
	List(dir string) ([]string, error)

	// Exists reports whether path exists.
	Exists(path string) (bool, error)

	// Touch creates an empty file at path if absent and leaves an existing
	// file alone.
	Touch(path string) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}
