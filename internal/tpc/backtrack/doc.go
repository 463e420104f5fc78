// Package backtrack attributes trigger primitives to the simulated particles
// that produced them.
//
// Matching runs in two phases. MatchWindows links a TP to the first particle
// whose channel set contains the TP's wire and whose time window, widened by
// a TDC error margin, contains its start time. EstimateOffset measures the
// systematic shift between depositions and TPs on shared wires, and
// MatchDepositions then links every TP to the best-scoring deposition within
// channel and time tolerances after removing that shift. Only phase-two links
// survive Run.
//
// The offset is per-event state kept on the event.Store.
package backtrack
