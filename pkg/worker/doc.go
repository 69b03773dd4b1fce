/*
Package worker implements the Flock worker: a process that executes a
user-supplied pure function over job inputs handed out by the manager
through the shared directory.

# Main Loop

	register (idle node record, heartbeat, availability token)
	loop:
	    read own node record
	    busy → load job document, run user function, write terminal
	           status verbatim, rewrite record idle, re-advertise
	    idle → back off (fast poll, then ~500ms)
	    evaluate exit conditions:
	        max_job reached | max_work_time reached |
	        finished marker present | heartbeat marked dead
	stop heartbeat, write final dead record, drop availability token

The finished marker defers exit while a job is in flight so in-progress
work always completes. All other non-running answers exit immediately.

# Job Execution

The user function answers with a Result whose Status is propagated into the
job document verbatim; panics and non-terminal answers are recorded as
crashed with the failure detail in the error field. With a timeout
configured, the function runs under a context deadline on its own goroutine
and an expiry synthesizes {crashed, "job timeout"}. The Exec adapter wraps
an external command as a JobFunc for workloads that need the child killed
rather than abandoned on timeout.

# Liveness

A background task rewrites heart/{node_id}.heart every period, carrying
best-effort host telemetry. The main loop's watchdog read of the same
record is how the manager reaches a worker it wants gone: the manager
rewrites the record as dead, the worker observes it and drains.
*/
package worker
