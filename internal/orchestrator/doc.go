// Package orchestrator drives layered guide updates.
//
// # Overview
//
// A run turns a change scope into guide edits in three steps:
//
//	changed files → affected guides → forest → layers
//
// The Planner performs the mapping and scheduling. The Orchestrator then
// executes the layers bottom-up: every guide in a layer is dispatched to the
// update agent concurrently, the layer is joined, and the diffs of the guides
// that actually changed become the layer summary handed to the parent layer.
//
// # Barrier
//
// Layer k+1 never starts before layer k has been joined and its summary
// written. The summary is the only data flowing between layers, and only the
// entries nested under a guide's directory reach that guide's prompt.
//
// # Failures
//
// A failed guide is recorded and never aborts its layer. A failed diff fetch
// marks the layer unchanged and the run continues. Failure to list changed
// files aborts the run with ErrFatalVCS after finalizing it as failed.
// Cancellation stops the run between layers; the run is finalized as failed
// with fewer completed layers than scheduled.
//
// # Events
//
// Every transition is reported to the Sink callbacks given at construction.
// Broadcaster adapts a Sink to channel subscribers for streaming.
package orchestrator
