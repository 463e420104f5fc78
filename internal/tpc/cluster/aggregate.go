package cluster

import (
	"gonum.org/v1/gonum/stat"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// Aggregator fills the summary fields of clusters.
type Aggregator struct {
	geom geometry.Geometry
}

// NewAggregator returns an Aggregator for geom.
func NewAggregator(geom geometry.Geometry) *Aggregator {
	return &Aggregator{geom: geom}
}

// AggregateAll fills the summary of every cluster.
func (a *Aggregator) AggregateAll(clusters []*Cluster) {
	for _, c := range clusters {
		a.Aggregate(c)
	}
}

// Aggregate computes reco_pos, total charge, truth label and fractions,
// interaction, and the closest supernova truth for c.
func (a *Aggregator) Aggregate(c *Cluster) {
	c.TotalCharge = c.ADCIntegral()
	c.RecoPos = a.recoPos(c)
	c.TrueLabel = Label(c.TPs)

	c.SupernovaFraction, c.GeneratorFraction = 0, 0
	if n := float64(len(c.TPs)); n > 0 {
		var sn, gen int
		for _, tp := range c.TPs {
			if tp.IsSupernova() {
				sn++
			}
			if tp.Generator() == c.TrueLabel {
				gen++
			}
		}
		c.SupernovaFraction = float64(sn) / n
		c.GeneratorFraction = float64(gen) / n
	}

	c.TrueInteraction = event.InteractionUnknown
	if p := majorityParticle(c.TPs); p != nil && p.Neutrino != nil {
		c.TrueInteraction = p.Neutrino.Interaction
	}

	a.closestTruth(c)
}

// recoPos is the centroid of the member positions. Collection clusters get
// (x, 0, z); induction clusters only know the unsigned drift distance.
func (a *Aggregator) recoPos(c *Cluster) geometry.Point {
	if len(c.TPs) == 0 {
		return geometry.Point{}
	}
	xs := make([]float64, len(c.TPs))
	zs := make([]float64, len(c.TPs))
	for i, tp := range c.TPs {
		p, _ := a.geom.Position(tp.Channel, tp.TimeStart)
		xs[i], zs[i] = p.X, p.Z
	}
	return geometry.Point{X: stat.Mean(xs, nil), Y: 0, Z: stat.Mean(zs, nil)}
}

// Label returns the common generator name of tps, "marley" when they
// disagree but at least one comes from a supernova neutrino, and UNKNOWN
// otherwise.
func Label(tps []*event.TriggerPrimitive) string {
	if len(tps) == 0 {
		return event.GeneratorUnknown
	}
	first := tps[0].Generator()
	same, supernova := true, false
	for _, tp := range tps {
		if tp.Generator() != first {
			same = false
		}
		if tp.IsSupernova() {
			supernova = true
		}
	}
	switch {
	case same:
		return first
	case supernova:
		return event.GeneratorMarley
	default:
		return event.GeneratorUnknown
	}
}

// majorityParticle returns the most frequent truth link among tps; ties go
// to the particle seen first.
func majorityParticle(tps []*event.TriggerPrimitive) *event.TrueParticle {
	counts := make(map[*event.TrueParticle]int)
	var best *event.TrueParticle
	bestN := 0
	for _, tp := range tps {
		if tp.Truth == nil {
			continue
		}
		counts[tp.Truth]++
		if n := counts[tp.Truth]; n > bestN {
			best, bestN = tp.Truth, n
		}
	}
	return best
}

// closestTruth walks the supernova members placed on the collection plane
// and keeps the one nearest (in x-z) to its own truth particle.
func (a *Aggregator) closestTruth(c *Cluster) {
	c.MinDistance = -1
	c.TruePos, c.TrueDir = geometry.Point{}, geometry.Point{}
	c.TrueParticleEnergy, c.TrueNeutrinoEnergy = 0, 0

	var best *event.TrueParticle
	for _, tp := range c.TPs {
		if !tp.IsSupernova() {
			continue
		}
		pos, ok := a.geom.Position(tp.Channel, tp.TimeStart)
		if !ok {
			if best == nil && c.MinDistance < 0 {
				best = tp.Truth
			}
			continue
		}
		d := pos.DistanceXZ(tp.Truth.Position())
		if c.MinDistance < 0 || d < c.MinDistance {
			c.MinDistance, best = d, tp.Truth
		}
	}
	if best == nil {
		return
	}

	c.TruePos = best.Position()
	c.TrueDir = best.Momentum().Unit()
	c.TrueParticleEnergy = best.Energy
	if best.Neutrino != nil {
		c.TrueNeutrinoEnergy = best.Neutrino.Energy
	}
}
