/*
Package store abstracts the shared directory that the manager and workers
coordinate through, typically a network file system mounted on every machine
in the fleet.

The interface offers whole-file primitives only: create, read, replace,
unlink, list, exists, touch. Whole-file writes are assumed atomic at the
reader's granularity; torn reads are still possible and are masked by the
Reader's bounded retry. There are no locks and no leases anywhere — safety
comes from the per-state write ownership enforced by the callers.

Two implementations exist. FS is the production store backed by the
operating system. Mem is an in-memory store for unit tests; its ReadHook can
inject torn or missing reads so the Reader's masking behavior is testable
without timing games.

# Reader

Every read in the coordination core goes through Reader.Load rather than the
raw store. Load retries a failed read (missing file or undecodable JSON) up
to a configured budget with a fixed backoff, then returns ErrUnreadable.
Callers never treat ErrUnreadable as corruption; they skip the document for
the cycle and re-read on the next one.
*/
package store
