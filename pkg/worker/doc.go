// Package worker provides the long-running background workers that keep
// contracts honest.
//
// A Sentinel consumes the event log through a checkpointed queue processor
// and re-evaluates every contract bound to the type of each new event. A
// Sweeper wakes up periodically and evaluates the open contracts (those
// without a trigger event) that are due. Both hand verdicts to a Validator,
// which appends a contract:invalidation event on violation, invalidates
// ad-hoc contracts and reschedules the next run.
//
// # Lifecycle
//
// Workers are single-use execution units:
//
//   - Start launches the worker loop in its own goroutine.
//   - RequestStop asks the loop to exit; it never force-kills.
//   - IsRunning reports whether the goroutine is still alive.
//   - Done is closed when the loop has exited.
//
// Once a worker has exited, Start returns ErrWorkerTerminated. Recovery is
// the supervisor's job: it discards the dead unit and builds a fresh one
// from the worker's blueprint.
//
// A panic inside a worker loop is recovered, logged and recorded as the
// worker's Err; the loop does not restart itself.
package worker
