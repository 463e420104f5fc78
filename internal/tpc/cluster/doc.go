// Package cluster owns single-plane clustering of trigger primitives and the
// per-cluster truth and position summary.
//
// Responsibilities: the streaming time/channel merge (Clusterer), the
// periodic channel topology of the induction planes (ChannelCompatible), and
// the summary fields filled by Aggregator.
// Key types: Cluster, Clusterer, Params, Aggregator.
//
// Dependency rule: cluster may depend on event and geometry. It never looks
// across planes; that is the matcher's job.
package cluster
