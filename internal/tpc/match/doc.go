// Package match joins one collection-plane cluster with one U and one V
// cluster of the same APA into a three-view object.
//
// The collection cluster fixes x and z. Each induction cluster's wires are
// projected through the geometry inverse at that z to a height y, and the
// triple is kept when the three drift distances agree and at least one U
// height lies within the radius of one V height.
package match
