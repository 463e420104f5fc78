// Package event owns the per-event data model: trigger primitives, simulated
// particles, primary neutrinos, Monte-Carlo truth records and energy
// depositions.
//
// A Store owns every record of one event. Truth links (TP → particle →
// neutrino) are plain pointers into the store and are valid for as long as
// the store is. Lookup tables are built once by Finalize; callers that mutate
// the record slices afterwards must call Finalize again.
//
// Dependency rule: event may depend on geometry and units, never on the
// clustering or matching packages.
package event
