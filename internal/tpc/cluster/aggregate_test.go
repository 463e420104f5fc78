package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

func withTruth(p *event.TriggerPrimitive, truth *event.TrueParticle) *event.TriggerPrimitive {
	p.Truth = truth
	return p
}

func TestLabel(t *testing.T) {
	nu := &event.Neutrino{Interaction: event.InteractionES}
	marley := &event.TrueParticle{Generator: "marley", Neutrino: nu}
	ar39 := &event.TrueParticle{Generator: "Ar39GenInLAr"}
	cosmic := &event.TrueParticle{Generator: "cosmic"}

	tests := []struct {
		name   string
		truths []*event.TrueParticle
		want   string
	}{
		{"all ar39", []*event.TrueParticle{ar39, ar39}, "Ar39GenInLAr"},
		{"all marley", []*event.TrueParticle{marley, marley, marley}, "marley"},
		{"mixed with supernova", []*event.TrueParticle{ar39, marley, cosmic}, event.GeneratorMarley},
		{"mixed background", []*event.TrueParticle{ar39, cosmic}, event.GeneratorUnknown},
		{"all unmatched", []*event.TrueParticle{nil, nil}, event.GeneratorUnknown},
		{"partly unmatched", []*event.TrueParticle{ar39, nil}, event.GeneratorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tps []*event.TriggerPrimitive
			for i, truth := range tt.truths {
				tps = append(tps, withTruth(tp(1700+uint64(i), int64(i), 2, 100), truth))
			}
			assert.Equal(t, tt.want, Label(tps))
		})
	}
	assert.Equal(t, event.GeneratorUnknown, Label(nil))
}

func TestAggregate_FractionsAndInteraction(t *testing.T) {
	g := geometry.Default()
	nu := &event.Neutrino{Interaction: event.InteractionCC, Energy: 20}
	electron := &event.TrueParticle{Generator: "marley", Neutrino: nu, Energy: 12, Px: 3, Py: 0, Pz: 4}
	ar39 := &event.TrueParticle{Generator: "Ar39GenInLAr"}

	c := &Cluster{View: geometry.ViewX, TPs: []*event.TriggerPrimitive{
		withTruth(tp(1700, 100, 2, 100), electron),
		withTruth(tp(1701, 101, 2, 200), electron),
		withTruth(tp(1702, 102, 2, 300), ar39),
		tp(1703, 103, 2, 400),
	}}
	NewAggregator(g).Aggregate(c)

	assert.Equal(t, int64(1000), c.TotalCharge)
	assert.Equal(t, event.GeneratorMarley, c.TrueLabel)
	assert.InDelta(t, 0.5, c.SupernovaFraction, 1e-12)
	assert.InDelta(t, 0.5, c.GeneratorFraction, 1e-12)
	assert.Equal(t, event.InteractionCC, c.TrueInteraction)
	assert.Equal(t, 12.0, c.TrueParticleEnergy)
	assert.Equal(t, 20.0, c.TrueNeutrinoEnergy)
	assert.InDelta(t, 0.6, c.TrueDir.X, 1e-12)
	assert.InDelta(t, 0.8, c.TrueDir.Z, 1e-12)
	assert.GreaterOrEqual(t, c.MinDistance, 0.0)

	// reco_pos is the centroid of the member positions.
	var sx, sz float64
	for _, m := range c.TPs {
		p, _ := g.Position(m.Channel, m.TimeStart)
		sx += p.X
		sz += p.Z
	}
	assert.InDelta(t, sx/4, c.RecoPos.X, 1e-9)
	assert.InDelta(t, sz/4, c.RecoPos.Z, 1e-9)
}

func TestAggregate_GeneratorPurity(t *testing.T) {
	g := geometry.Default()
	ar39 := &event.TrueParticle{Generator: "Ar39GenInLAr"}
	other := &event.TrueParticle{Generator: "Ar39GenInLAr", TrackID: 2}

	c := &Cluster{TPs: []*event.TriggerPrimitive{
		withTruth(tp(1700, 0, 2, 100), ar39),
		withTruth(tp(1701, 1, 2, 100), other),
	}}
	NewAggregator(g).Aggregate(c)

	assert.Equal(t, "Ar39GenInLAr", c.TrueLabel)
	assert.Equal(t, 1.0, c.GeneratorFraction)
	assert.Equal(t, 0.0, c.SupernovaFraction)
	assert.Equal(t, event.InteractionUnknown, c.TrueInteraction)
	assert.Equal(t, -1.0, c.MinDistance)
}

func TestAggregate_ClosestSupernovaTruth(t *testing.T) {
	g := geometry.Default()
	nu := &event.Neutrino{Interaction: event.InteractionES}

	near := tp(1700, 200, 2, 100)
	far := tp(1710, 200, 2, 100)
	nearPos, _ := g.Position(near.Channel, near.TimeStart)
	farPos, _ := g.Position(far.Channel, far.TimeStart)

	a := &event.TrueParticle{Neutrino: nu, X: farPos.X, Y: 40, Z: farPos.Z + 10, Energy: 1}
	b := &event.TrueParticle{Neutrino: nu, X: nearPos.X, Y: 80, Z: nearPos.Z + 1, Energy: 2}
	near.Truth, far.Truth = b, a

	c := &Cluster{TPs: []*event.TriggerPrimitive{far, near}}
	NewAggregator(g).Aggregate(c)

	assert.InDelta(t, 1, c.MinDistance, 1e-9)
	assert.Equal(t, 80.0, c.TruePos.Y)
	assert.Equal(t, 2.0, c.TrueParticleEnergy)
	assert.Equal(t, event.InteractionES, c.TrueInteraction)
}

func TestAggregate_InductionCluster(t *testing.T) {
	g := geometry.Default()
	c := &Cluster{View: geometry.ViewU, TPs: []*event.TriggerPrimitive{
		tp(10, 100, 2, 100),
		tp(11, 300, 2, 100),
	}}
	NewAggregator(g).Aggregate(c)

	want := (g.DriftDistance(100) + g.DriftDistance(300)) / 2
	assert.InDelta(t, want, c.RecoPos.X, 1e-9)
	assert.Equal(t, 0.0, c.RecoPos.Z)
	assert.False(t, math.IsNaN(c.RecoPos.X))
}

func TestClusterTimes(t *testing.T) {
	c := &Cluster{TPs: []*event.TriggerPrimitive{
		tp(1700, 50, 2, 1),
		tp(1701, 10, 2, 1),
		tp(1702, 90, 2, 1),
	}}
	assert.Equal(t, int64(10), c.EarliestTime())
	assert.Equal(t, int64(90), c.LatestTime())
	assert.Equal(t, int64(3), c.ADCIntegral())

	empty := &Cluster{}
	assert.Equal(t, int64(0), empty.EarliestTime())
	assert.Equal(t, int64(0), empty.LatestTime())
}
