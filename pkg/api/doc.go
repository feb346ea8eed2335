// Package api contains the shared data model of the sentinel contract
// engine: events, contracts, queue cursors and the Observer hooks used for
// logging and metrics.
//
// Most users interact with the higher-level sentinel package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom store implementations and integrations.
//
// # Events
//
// An Event is an immutable entry in an append-only log. Stores assign a
// strictly increasing ID on append. Timestamps are integer milliseconds since
// the Unix epoch in UTC; all conversions happen at the edges through
// TimestampOf and Event.Time.
//
// # Contracts
//
// A Contract binds a rule (its Conditions source) to either a trigger event
// type or, when TriggerEvent is empty, to a schedule derived from its
// Frequency. Workers mutate LastRunDate, NextRunDate and IsValid after each
// evaluation; nothing in the engine deletes contracts.
//
// # Observability
//
// Observer implementations receive evaluation, violation, batch and worker
// lifecycle callbacks. LoggingObserver writes log/slog records, BasicMetrics
// keeps in-process counters, and CompositeObserver fans out to several.
package api
