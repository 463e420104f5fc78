// Package geometry owns the detector geometry model of the TPC data model.
//
// Responsibilities: decoding global channel numbers into (APA, view, local
// channel), the collection-plane forward map from (channel, time) to
// (x, y, z), and the induction-plane inverse that recovers y on a U or V
// wire once z and the drift side are known.
// Key types: Geometry, View, Channel, Point.
//
// The model is read-only once built and is shared by every event.
// Dependency rule: geometry imports only internal/config and internal/units;
// no TPC package may be imported from here.
package geometry
