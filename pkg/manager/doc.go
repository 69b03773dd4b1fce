/*
Package manager implements the Flock manager: the process that owns a run,
hands jobs out to workers, and reconciles progress until every job reaches a
terminal status.

The manager never talks to a worker directly. All coordination happens
through small JSON documents in the shared directory, written whole-file and
polled by both sides.

# Architecture

	┌──────────────────── MANAGER PROCESS ────────────────────┐
	│                                                           │
	│  ┌─────────────────────────────────────────┐            │
	│  │        Reconciliation Loop (foreground)  │            │
	│  │  - heartbeat scan → alive / newly dead   │            │
	│  │  - dead-node cascade → job crashed       │            │
	│  │  - working-ticket sweep → counters       │            │
	│  │  - status report (throttled 1/s)         │            │
	│  │  - finished-marker logic                 │            │
	│  └──────────────────┬──────────────────────┘            │
	│                     │ started by Run                      │
	│  ┌──────────────────▼──────────────────────┐            │
	│  │        Assignment Loop (goroutine)       │            │
	│  │  - snapshot available/ tokens            │            │
	│  │  - pop token per unassigned job          │            │
	│  │  - 4-step assignment transaction         │            │
	│  └─────────────────────────────────────────┘            │
	│                                                           │
	└────────────────────────┬─────────────────────────────────┘
	                         │ whole-file JSON writes + polling
	                ┌────────▼────────┐
	                │  shared base_dir │
	                └─────────────────┘

# Assignment Transaction

Each assignment executes four independent whole-file writes in a fixed
order: job status (assigned, assigned_to), node record (busy, task), unlink
of the availability token, working ticket. The order guarantees that a
crash between any two steps leaves the run recoverable, and that observing
a working ticket implies the job document already reads assigned.

# Liveness

A node whose heartbeat is older than the configured timeout, self-reports
dead, or cannot be read is declared dead for the rest of the run. The
declaration is sticky: a worker that comes back under the same id is not
assigned new work, which closes the race against a worker that crashed
mid-job and restarted. Declaring a busy node dead cascades to its in-flight
job, which is rewritten as crashed and never re-queued.

# Resume

Job status documents persist forever, so restarting the manager against the
same base directory adopts the recorded states: terminal jobs are counted,
assigned jobs get their working ticket re-created, and only jobs still
unassigned enter the assignment queue.
*/
package manager
