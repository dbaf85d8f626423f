// Package registry imports professional-registry exports into a durable store.
//
// An import runs in two stages. Parse turns a comma-delimited export into
// typed Candidates, dropping rows that cannot be used. Engine.Reconcile then
// writes the candidates in fixed-size chunks, one transaction per chunk,
// upserting each record by its normalized tax identifier.
//
// A write failure rolls back its whole chunk and is reported in the Outcome;
// the remaining chunks still run. Failures that prevent any chunk from being
// opened or committed abort the run with ErrStoreUnavailable.
//
// Service wraps both stages with concurrency limiting, metrics and logging for
// the HTTP and CLI front ends.
package registry
