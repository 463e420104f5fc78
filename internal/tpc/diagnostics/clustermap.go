package diagnostics

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// EchartsAssetsHost is where rendered pages load the echarts scripts from.
var EchartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// MapPoint is one cluster drawn on the map.
type MapPoint struct {
	Event  int64
	View   string
	X, Y   float64 // drift and height (cm)
	Z      float64 // beam (cm)
	NTPs   int
	Charge int64
	Label  string
}

func pointFromCluster(ev int64, view string, pos geometry.Point, n int, charge int64, label string) MapPoint {
	return MapPoint{Event: ev, View: view, X: pos.X, Y: pos.Y, Z: pos.Z, NTPs: n, Charge: charge, Label: label}
}

// PointsFromRecords builds map points from stored records. Induction-plane
// records carry no usable position and are skipped.
func PointsFromRecords(recs []record.ClusterRecord) []MapPoint {
	out := make([]MapPoint, 0, len(recs))
	for _, r := range recs {
		if r.View == geometry.ViewU.String() || r.View == geometry.ViewV.String() {
			continue
		}
		out = append(out, MapPoint{
			Event:  r.Event,
			View:   r.View,
			X:      r.RecoPosX,
			Y:      r.RecoPosY,
			Z:      r.RecoPosZ,
			NTPs:   r.NTPs,
			Charge: r.TotalCharge,
			Label:  r.TrueLabel,
		})
	}
	return out
}

// RenderClusterMap writes an HTML page with a Z/X scatter of points, one
// series per truth label, coloured by TP count.
func RenderClusterMap(w io.Writer, title string, points []MapPoint) error {
	byLabel := make(map[string][]opts.ScatterData)
	maxN := 1
	for _, p := range points {
		label := p.Label
		if label == "" {
			label = "UNKNOWN"
		}
		byLabel[label] = append(byLabel[label], opts.ScatterData{
			Name:  fmt.Sprintf("event %d %s", p.Event, p.View),
			Value: []interface{}{p.Z, p.X, p.NTPs},
		})
		if p.NTPs > maxN {
			maxN = p.NTPs
		}
	}
	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1200px", Height: "700px", AssetsHost: EchartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("clusters=%d labels=%d", len(points), len(labels))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Z (cm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "X (cm)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        1,
			Max:        float32(maxN),
			InRange:    &opts.VisualMapInRange{Color: []string{"#313695", "#4575b4", "#74add1", "#abd9e9", "#fee090", "#fdae61", "#f46d43", "#d73027"}},
		}),
	)
	for _, l := range labels {
		scatter.AddSeries(l, byLabel[l], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render cluster map: %w", err)
	}
	return nil
}
