// Package diagnostics turns pipeline output into plots.
//
// Responsibilities:
//   - accumulate per-run histograms (cluster size per plane, total charge,
//     backtracker offset residuals) while a Runner processes events
//   - write the histograms as PNG files with gonum/plot
//   - render an interactive scatter of reconstructed cluster positions with
//     go-echarts, from live results or from stored records
//
// Key types: Collector, Stats, MapPoint.
//
// Dependency rule: diagnostics reads pipeline and record types; nothing in
// the tpc layer imports it.
package diagnostics
