/*
Package log provides structured logging for Flock using zerolog.

Call Init once at process start, then derive component loggers with
WithComponent (manager, assigner, worker, heartbeat, store). Console output
is human-readable by default; JSONOutput switches to machine-parseable lines
for log aggregation.

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("worker")
	logger.Info().Str("node_id", id).Msg("Node registered")
*/
package log
