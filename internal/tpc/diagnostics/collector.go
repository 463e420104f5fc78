package diagnostics

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/pipeline"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// Binning is the axis of one histogram.
type Binning struct {
	Bins     int
	Min, Max float64
}

// Default binnings.
var (
	SizeBinning     = Binning{Bins: 40, Min: 0, Max: 40}
	ChargeBinning   = Binning{Bins: 100, Min: 0, Max: 50000}
	ResidualBinning = Binning{Bins: 100, Min: -500, Max: 500}
)

// Collector accumulates histograms over a run. Observe has the signature of
// pipeline.Runner.Observe.
type Collector struct {
	mu sync.Mutex

	size     [3]*hbook.H1D
	charge   *hbook.H1D
	residual *hbook.H1D

	events  int
	offsets []int64
	points  []MapPoint
}

// NewCollector returns an empty collector with the default binnings.
func NewCollector() *Collector {
	c := &Collector{
		charge:   hbook.NewH1D(ChargeBinning.Bins, ChargeBinning.Min, ChargeBinning.Max),
		residual: hbook.NewH1D(ResidualBinning.Bins, ResidualBinning.Min, ResidualBinning.Max),
	}
	for _, v := range geometry.Views {
		c.size[v] = hbook.NewH1D(SizeBinning.Bins, SizeBinning.Min, SizeBinning.Max)
	}
	return c
}

// Observe fills the histograms from one event.
func (c *Collector) Observe(res *pipeline.EventResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events++
	for _, v := range geometry.Views {
		for _, cl := range res.Clusters[v] {
			c.size[v].Fill(float64(cl.Size()), 1)
			c.charge.Fill(float64(cl.TotalCharge), 1)
			if v == geometry.ViewX {
				c.points = append(c.points, pointFromCluster(res.Event, cl.View.String(), cl.RecoPos, cl.Size(), cl.TotalCharge, cl.TrueLabel))
			}
		}
	}
	for _, t := range res.Triples {
		c.points = append(c.points, pointFromCluster(res.Event, record.ViewThree, t.Joined.RecoPos, t.Joined.Size(), t.Joined.TotalCharge, t.Joined.TrueLabel))
	}

	bt := res.Backtrack
	if len(bt.OffsetSamples) > 0 {
		c.offsets = append(c.offsets, bt.Offset)
		for _, s := range bt.OffsetSamples {
			c.residual.Fill(s-float64(bt.Offset), 1)
		}
	}
}

// Stats summarises a collector.
type Stats struct {
	Events      int
	Clusters    [3]int64
	MeanSize    [3]float64
	MeanCharge  float64
	Offsets     []int64
	ResidualRMS float64
}

// Stats returns the current summary. Means of empty histograms are 0.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Events:      c.events,
		MeanCharge:  mean(c.charge),
		Offsets:     append([]int64(nil), c.offsets...),
		ResidualRMS: rms(c.residual),
	}
	for _, v := range geometry.Views {
		st.Clusters[v] = c.size[v].Entries()
		st.MeanSize[v] = mean(c.size[v])
	}
	return st
}

// Points returns the collection and joined cluster positions seen so far.
func (c *Collector) Points() []MapPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MapPoint(nil), c.points...)
}

func mean(h *hbook.H1D) float64 {
	if h.Entries() == 0 || h.SumW() == 0 {
		return 0
	}
	return h.XMean()
}

func rms(h *hbook.H1D) float64 {
	if h.Entries() == 0 || h.SumW() == 0 {
		return 0
	}
	v := h.XRMS()
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// SaveHistograms writes one PNG per histogram into dir and returns the
// written paths.
func (c *Collector) SaveHistograms(dir string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	type spec struct {
		file, title, xlabel string
		h                   *hbook.H1D
	}
	specs := []spec{
		{"cluster_charge.png", "Cluster total charge", "ADC integral", c.charge},
		{"offset_residuals.png", "Offset residuals", "sample - offset (ticks)", c.residual},
	}
	for _, v := range geometry.Views {
		specs = append(specs, spec{
			file:   fmt.Sprintf("cluster_size_%s.png", v),
			title:  fmt.Sprintf("Cluster size, plane %s", v),
			xlabel: "TPs per cluster",
			h:      c.size[v],
		})
	}

	var written []string
	for _, s := range specs {
		path := filepath.Join(dir, s.file)
		if err := saveH1D(s.h, s.title, s.xlabel, path); err != nil {
			return written, fmt.Errorf("save %s: %w", s.file, err)
		}
		written = append(written, path)
	}
	monitoring.Logf("[Diagnostics] wrote %d histograms to %s", len(written), dir)
	return written, nil
}

// saveH1D draws the bin contents of h as a gonum histogram.
func saveH1D(h *hbook.H1D, title, xlabel, path string) error {
	bins := h.Binning.Bins
	xys := make(plotter.XYs, len(bins))
	for i, b := range bins {
		xys[i] = plotter.XY{X: b.XMid(), Y: b.SumW()}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Entries"

	hist, err := plotter.NewHistogram(xys, len(bins))
	if err != nil {
		return err
	}
	p.Add(hist)
	p.Legend.Top = true
	p.Legend.Add(fmt.Sprintf("N=%d", h.Entries()), hist)

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
