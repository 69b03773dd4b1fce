/*
Package types defines the persisted data model of a Flock run: the job, node,
and heartbeat documents, the typed state machines that govern them, and the
layout of the shared directory.

All coordination state lives in small JSON documents under a base directory.
Each document is rewritten in full on every update; there is no partial-update
operation anywhere in the system.

# Entities

	Entity       Path                        Writer
	Job status   status/{task}.status        manager (create, crash cascade), worker (terminal)
	Node status  nodes/{node_id}.status      worker (idle), manager (busy)
	Heartbeat    heart/{node_id}.heart       worker (periodic), manager (mark dead)
	Availability available/{node_id}         worker (touch), manager (unlink on assign)
	Working      working/{task}              manager (create on assign, unlink on terminal)
	Finished     finished                    manager (touch once)

# Job State Machine

	unassigned ──(manager assigns)──▶ assigned
	assigned   ──(worker, success)──▶ success
	assigned   ──(worker, failed)───▶ failed
	assigned   ──(worker crash/timeout, or manager dead-node cascade)──▶ crashed

success, failed, and crashed are terminal and never revisited. CanTransition
encodes the edge set so writers can validate moves instead of comparing
strings ad hoc.

# Ownership

Write authority for each file follows the current state: the manager owns a
job document while it is unassigned and during a crash cascade, the assigned
worker owns it while assigned. The node record flips between worker (idle)
and manager (busy). No two parties are authorized to write the same file in
the same state, which is what lets the system run without locks.
*/
package types
