// Package model defines the domain types and value objects for the
// dockports service.
//
// This package contains pure data structures with no external
// dependencies. PortRecord, GapRange, ViewEntry, and Snapshot are
// transient representations rebuilt from live source queries on every
// aggregation pass; HiddenPortEntry is the only durable entity and is
// persisted by the hidden-port store.
//
// The package also defines the error taxonomy (AppError/ErrorKind) used
// for degradation and rejection decisions across the pipeline, and the
// process exit codes (ExitCode) for the CLI layer.
package model
