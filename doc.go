// Package sentinel is an embeddable contract validation engine for Go.
//
// Sentinel watches an append-only log of timestamped life-events and checks
// user-declared contracts against it, flagging violations in near real time.
// A contract is a small rule such as
//
//	gaming:league_of_legends AFTER 2x exercise WITHIN 1h AND laundry:loaded WITHIN 30m
//
// which reads "whenever gaming:league_of_legends is logged, there must have
// been two exercise events in the preceding hour and a laundry:loaded event in
// the preceding 30 minutes".
//
// # Core Concepts
//
//  1. Store
//  2. Rule language
//  3. Evaluator
//  4. Workers
//  5. Supervisor
//
// # Store
//
// A Store groups three collaborators: the event log, the contract table and
// the consumer cursors. Backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite
//   - Postgres
//   - Redis (event log and cursors only, combined with a SQL contract table)
//
// Timestamps are integer milliseconds since the Unix epoch in UTC everywhere.
//
// # Rule language
//
// Rules combine counted events ("3x exercise"), time windows ("WITHIN 30m"),
// history checks ("commit SINCE deploy"), clock checks
// ("CLOCK(2200) BETWEEN CLOCK(0600)") and the logical operators AND, OR and
// NOT. AND binds tighter than OR; parentheses override. The rule package
// parses rules into Condition values and renders them back in canonical form.
// CheckRule is a convenient entry point.
//
// # Evaluator
//
// The evaluator package judges a Condition against the event log, either at
// the moment of a trigger event or, for open contracts without a trigger, at
// a point in time using the contract's frequency window.
//
// # Workers
//
// Two workers apply verdicts:
//
//   - the Sentinel consumes new events through a checkpointed queue and
//     validates the contracts bound to each event's type;
//   - the Sweeper periodically validates open contracts that are due.
//
// On violation a contract:invalidation event is appended to the same log.
// Ad-hoc contracts are then switched off; recurring ones stay valid. Every
// judged contract is rescheduled. Contracts whose rule does not parse fail
// closed: they are marked invalid and no violation is recorded.
//
// # Supervisor
//
// The supervisor package starts, stops and resurrects workers. Workers are
// single-use, so a terminated worker is rebuilt from its Blueprint with a new
// instance ID. Bundle and LocalRunner assemble a Store, the two workers and a
// Supervisor in one call.
//
// For a runnable process see cmd/sentinel; for small programs see the
// /examples directory.
package sentinel
