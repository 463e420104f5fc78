// Package ingest turns raw per-event input rows into an event.Store.
//
// Input rows are loosely typed (Row) because the upstream trees have carried
// several spellings of the same branch over time. A Resolver maps each
// canonical field to its known aliases, prefers a non-zero canonical value,
// and warns once per source and field when nothing usable is found.
//
// The Builder applies the input contract: version-1 TDC conversion,
// detector-local channel promotion, the time-over-threshold filter, particle
// and neutrino routing, and finally Store.Finalize.
package ingest
