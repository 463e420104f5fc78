package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/cluster"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

func init() {
	monitoring.SetLogger(nil)
}

func single(view geometry.View, apa, ch uint64, t int64, x, z float64) *cluster.Cluster {
	return &cluster.Cluster{
		APA:  apa,
		View: view,
		TPs: []*event.TriggerPrimitive{
			{Channel: ch, TimeStart: t, ADCIntegral: 100},
		},
		RecoPos:     geometry.Point{X: x, Z: z},
		TotalCharge: 100,
		TrueLabel:   "marley",
	}
}

// threeView builds X at (x=50, z=100) and U/V clusters whose wires pass
// through y=25 and y=25.5 at that z.
func threeView(g geometry.Geometry, apa uint64, t int64) (u, v, x *cluster.Cluster) {
	z := 100 + float64(apa/2)*(g.APALength+g.APAOffset)
	uCh := g.InductionChannel(geometry.ViewU, apa, z, 25, 1)
	vCh := g.InductionChannel(geometry.ViewV, apa, z, 25.5, 1)
	x = single(geometry.ViewX, apa, g.GlobalChannel(apa, geometry.ViewX, 700), t, 50, z)
	u = single(geometry.ViewU, apa, uCh, t+2, 50, 0)
	v = single(geometry.ViewV, apa, vCh, t+4, 50, 0)
	return u, v, x
}

func TestCompatible_ThreeViewJoin(t *testing.T) {
	g := geometry.Default()
	u, v, x := threeView(g, 0, 1000)

	ok, yu, yv := Compatible(g, u, v, x, 1)
	require.True(t, ok)
	assert.InDelta(t, 25, yu, g.WirePitchUV)
	assert.InDelta(t, 25.5, yv, g.WirePitchUV)

	joined := Join(u, v, x, yu, yv)
	assert.InDelta(t, 25.25, joined.RecoPos.Y, 0.1)
	assert.Equal(t, 50.0, joined.RecoPos.X)
	assert.Equal(t, x.RecoPos.Z, joined.RecoPos.Z)
	assert.Equal(t, 3, joined.Size())
	assert.Equal(t, "marley", joined.TrueLabel)
	assert.Equal(t, int64(300), joined.TotalCharge)
	// Join never mutates its inputs.
	assert.Equal(t, 1, x.Size())
}

func TestCompatible_Rejections(t *testing.T) {
	g := geometry.Default()

	t.Run("drift mismatch", func(t *testing.T) {
		u, v, x := threeView(g, 0, 0)
		u.RecoPos.X = 52
		ok, _, _ := Compatible(g, u, v, x, 1)
		assert.False(t, ok)
	})

	t.Run("heights disagree", func(t *testing.T) {
		u, v, x := threeView(g, 0, 0)
		far := g.InductionChannel(geometry.ViewV, 0, x.RecoPos.Z, 300, 1)
		v.TPs[0].Channel = far
		ok, _, _ := Compatible(g, u, v, x, 1)
		assert.False(t, ok)
	})

	t.Run("wrong planes", func(t *testing.T) {
		u, v, x := threeView(g, 0, 0)
		ok, _, _ := Compatible(g, v, u, x, 1)
		assert.False(t, ok)
	})
}

func TestCompatible_RequiresSameAPA(t *testing.T) {
	g := geometry.Default()
	var clusters [3][]*cluster.Cluster // per view, across APAs
	for apa := uint64(0); apa < 4; apa++ {
		u, v, x := threeView(g, apa, 0)
		clusters[0] = append(clusters[0], u)
		clusters[1] = append(clusters[1], v)
		clusters[2] = append(clusters[2], x)
	}

	for _, u := range clusters[0] {
		for _, v := range clusters[1] {
			for _, x := range clusters[2] {
				ok, _, _ := Compatible(g, u, v, x, 1000)
				if ok && (u.APA != x.APA || v.APA != x.APA) {
					t.Fatalf("compatible across APAs: u=%d v=%d x=%d", u.APA, v.APA, x.APA)
				}
			}
		}
	}
}

func TestMatcher_Match(t *testing.T) {
	g := geometry.Default()
	m := NewMatcher(g, 1, 5000)

	u0, v0, x0 := threeView(g, 0, 1000)
	u2, v2, x2 := threeView(g, 2, 1000)
	// A U/V pair far outside the time window of x0.
	uLate, vLate, _ := threeView(g, 0, 100000)

	triples := m.Match([]*cluster.Cluster{uLate, x0, vLate, u0, v0, x2, u2, v2})
	require.Len(t, triples, 2)

	assert.Same(t, x0, triples[0].X)
	assert.Same(t, u0, triples[0].U)
	assert.Same(t, v0, triples[0].V)
	assert.Same(t, x2, triples[1].X)
	assert.Equal(t, uint64(2), triples[1].Joined.APA)
	assert.InDelta(t, 25.25, triples[1].Joined.RecoPos.Y, 0.1)
}

func TestMatcher_TimeWindow(t *testing.T) {
	g := geometry.Default()
	u, v, x := threeView(g, 0, 1000)
	v.TPs[0].TimeStart = 1000 + 6000

	assert.Empty(t, NewMatcher(g, 1, 5000).Match([]*cluster.Cluster{u, v, x}))
	assert.Len(t, NewMatcher(g, 1, 10000).Match([]*cluster.Cluster{u, v, x}), 1)
}

func TestMatcher_MissingPlane(t *testing.T) {
	g := geometry.Default()
	u, _, x := threeView(g, 0, 0)
	assert.Empty(t, NewMatcher(g, 5, 5000).Match([]*cluster.Cluster{u, x}))
	assert.Empty(t, NewMatcher(g, 5, 5000).Match(nil))
}

func TestMatcher_PlaneClusterJoinsOneTriple(t *testing.T) {
	g := geometry.Default()
	u, v, x := threeView(g, 0, 1000)
	// Neighbouring collection wire, same position: compatible with u and v.
	xNext := single(geometry.ViewX, 0, g.GlobalChannel(0, geometry.ViewX, 701), 1010,
		x.RecoPos.X, x.RecoPos.Z)

	ok, _, _ := Compatible(g, u, v, xNext, 1)
	require.True(t, ok)

	triples := NewMatcher(g, 1, 5000).Match([]*cluster.Cluster{u, v, x, xNext})
	require.Len(t, triples, 1)
	assert.Same(t, x, triples[0].X)
	assert.Same(t, u, triples[0].U)
	assert.Same(t, v, triples[0].V)
}

func TestMatcher_SecondPairServesSecondCollectionCluster(t *testing.T) {
	g := geometry.Default()
	u1, v1, x1 := threeView(g, 0, 1000)
	u2, v2, x2 := threeView(g, 0, 1010)

	triples := NewMatcher(g, 1, 5000).Match([]*cluster.Cluster{u1, v1, x1, u2, v2, x2})
	require.Len(t, triples, 2)
	assert.Same(t, u1, triples[0].U)
	assert.Same(t, v1, triples[0].V)
	assert.Same(t, u2, triples[1].U)
	assert.Same(t, v2, triples[1].V)
	assert.NotSame(t, triples[0].Joined, triples[1].Joined)
}
