// Package pipeline is the composition root of the per-event reconstruction.
//
// Responsibilities:
//   - run the backtracker on a finalised event store
//   - split the TPs by plane and cluster the three planes concurrently
//   - aggregate truth and position summaries
//   - build three-view matches and, optionally, volume clusters
//   - drive a batch from an ingest.Source into a Sink (Runner)
//
// Key types: Pipeline, EventResult, Runner, Sink, Summary.
//
// Dependency rule: pipeline imports the tpc layer packages and record; none
// of those import pipeline. Output stores implement Sink without importing
// this package.
package pipeline
