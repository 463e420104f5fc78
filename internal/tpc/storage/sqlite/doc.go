// Package sqlite is the results database: one row per run, one row per
// cluster record with its member TPs in a child table, and the three-view
// matches linking plane clusters to their joined cluster.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary. Open applies the connection PRAGMAs and migrates to the latest
// version, so callers never see an old schema.
package sqlite
