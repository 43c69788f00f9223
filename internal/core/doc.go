// Package core is the batch transfer engine.
//
// It moves rows between a tabular store and delimited files in either
// direction, in fixed-size batches, while keeping a pollable progress record
// for every transfer. Nothing in this package knows about HTTP; the web layer
// and tests drive it through [Service].
//
// # Transfers
//
// [Service.StartTransfer] registers an [Operation] with status running and
// returns its id before any data moves. The transfer itself runs on a
// bounded [WorkerPool]:
//
//  1. Estimating: count rows in the table, or lines in the file minus the
//     header. A failed count is logged and the total stays zero.
//  2. Streaming: pull batches from a [BatchIterator] and push each one through
//     a [BatchSink]. After every batch the operation is updated and written
//     back to the [Registry].
//  3. Finalizing: sinks that implement [Finalizer] write their output now.
//
// File to store uses batches of 1000 rows inserted as they are read. Store to
// file pages with LIMIT/OFFSET in pages of 10000 and by default accumulates
// every page for a single file write; set ServiceConfig.StreamExports to
// append each page instead.
//
// A failure at any point finishes the operation with status error, keeps the
// rows already committed in recordsProcessed and records a message that
// includes the underlying cause.
//
// # Registry
//
// The [Registry] is the only state shared between transfers and pollers.
// Finished operations are dropped lazily once startTime + executionTimeMs
// is older than the retention window (one hour by default).
//
// # Error Handling
//
// Collaborators return [*QueryError], [*InsertError] and [*IOError]. The
// engine wraps them as [*SourceReadError] or [*SinkWriteError]; projection
// problems surface as [*ColumnNotFoundError] listing every missing column.
// [MapError] turns any of them into a user-facing message with a support code.
package core
