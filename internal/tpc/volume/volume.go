// Package volume collects every trigger primitive within a sphere around a
// seed cluster's reconstructed position.
package volume

import (
	"math"
	"sort"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/cluster"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// timeMargin widens the radius, converted to ticks, before the time scan.
const timeMargin = 1.2

// Gatherer finds TPs near a seed cluster.
type Gatherer struct {
	geom   geometry.Geometry
	radius float64
}

// NewGatherer returns a Gatherer with radius r in cm.
func NewGatherer(geom geometry.Geometry, r float64) *Gatherer {
	return &Gatherer{geom: geom, radius: r}
}

// Radius returns the gathering radius in cm.
func (g *Gatherer) Radius() float64 {
	return g.radius
}

// windowTicks is the radius expressed in ticks, with margin.
func (g *Gatherer) windowTicks() int64 {
	if g.geom.TimeTickCM <= 0 {
		return 0
	}
	return int64(math.Ceil(g.radius / g.geom.TimeTickCM * timeMargin))
}

// Gather returns the TPs of tps, which must be sorted by time_start, whose
// position lies strictly within the radius of seed.RecoPos. Only
// collection-plane TPs have a full position and can be gathered.
func (g *Gatherer) Gather(seed *cluster.Cluster, tps []*event.TriggerPrimitive) []*event.TriggerPrimitive {
	if seed == nil || seed.Size() == 0 || len(tps) == 0 {
		return nil
	}
	w := g.windowTicks()
	lo := seed.EarliestTime() - w
	hi := seed.LatestTime() + w

	first := sort.Search(len(tps), func(i int) bool { return tps[i].TimeStart >= lo })

	var out []*event.TriggerPrimitive
	for _, tp := range tps[first:] {
		if tp.TimeStart > hi {
			break
		}
		p, ok := g.geom.Position(tp.Channel, tp.TimeStart)
		if !ok {
			continue
		}
		if p.Distance(seed.RecoPos) < g.radius {
			out = append(out, tp)
		}
	}
	return out
}

// GatherCluster returns a copy of seed whose members are the gathered TPs.
func (g *Gatherer) GatherCluster(seed *cluster.Cluster, tps []*event.TriggerPrimitive) *cluster.Cluster {
	gathered := g.Gather(seed, tps)
	vol := *seed
	vol.TPs = gathered
	vol.TotalCharge = vol.ADCIntegral()
	return &vol
}
