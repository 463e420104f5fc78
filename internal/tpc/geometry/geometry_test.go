package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
)

func floatEquals(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestDecode_PlanePartition(t *testing.T) {
	g := Default()

	tests := []struct {
		ch        uint64
		apa       uint64
		local     uint64
		view      View
		viewIndex uint64
	}{
		{0, 0, 0, ViewU, 0},
		{799, 0, 799, ViewU, 799},
		{800, 0, 800, ViewV, 0},
		{1599, 0, 1599, ViewV, 799},
		{1600, 0, 1600, ViewX, 0},
		{2559, 0, 2559, ViewX, 959},
		{2560, 1, 0, ViewU, 0},
		{2560*3 + 1700, 3, 1700, ViewX, 100},
	}

	for _, tt := range tests {
		c := g.Decode(tt.ch)
		if c.APA != tt.apa || c.Local != tt.local || c.View != tt.view || c.ViewIndex != tt.viewIndex {
			t.Errorf("Decode(%d) = %+v, want apa=%d local=%d view=%v idx=%d",
				tt.ch, c, tt.apa, tt.local, tt.view, tt.viewIndex)
		}
		if back := g.GlobalChannel(c.APA, c.View, c.ViewIndex); back != tt.ch {
			t.Errorf("GlobalChannel(Decode(%d)) = %d", tt.ch, back)
		}
	}
}

func TestValidChannel(t *testing.T) {
	g := Default()
	assert.True(t, g.ValidChannel(0))
	assert.True(t, g.ValidChannel(g.MaxChannel()-1))
	assert.False(t, g.ValidChannel(g.MaxChannel()))
}

func TestViewString(t *testing.T) {
	assert.Equal(t, "U", ViewU.String())
	assert.Equal(t, "V", ViewV.String())
	assert.Equal(t, "X", ViewX.String())
	assert.True(t, ViewU.Induction())
	assert.False(t, ViewX.Induction())

	v, err := ParseView("x")
	require.NoError(t, err)
	assert.Equal(t, ViewX, v)
	_, err = ParseView("W")
	assert.Error(t, err)
}

// A lone collection TP at channel 1600, tick 0 sits on the first wire of the
// first face: z is one pitch, x is negative, y is undetermined.
func TestPosition_FirstCollectionWire(t *testing.T) {
	g := Default()

	p, ok := g.Position(1600, 0)
	require.True(t, ok)
	assert.InDelta(t, g.WirePitchX, p.Z, 1e-9)
	assert.Less(t, p.X, 0.0)
	assert.Equal(t, 0.0, p.Y)
}

func TestPosition_InductionHasOnlyDriftDistance(t *testing.T) {
	g := Default()
	p, ok := g.Position(10, 100)
	assert.False(t, ok)
	assert.InDelta(t, g.DriftDistance(100), p.X, 1e-9)
	assert.Equal(t, 0.0, p.Z)
}

func TestCollectionZ_StrictlyMonotonicPerFace(t *testing.T) {
	g := Default()
	half := g.XChannels / 2

	for apa := uint64(0); apa < 4; apa++ {
		for face := uint64(0); face < 2; face++ {
			prev := math.Inf(-1)
			for i := uint64(0); i < half; i++ {
				ch := g.GlobalChannel(apa, ViewX, face*half+i)
				z := g.CollectionZ(ch)
				if z <= prev {
					t.Fatalf("apa %d face %d: z not increasing at index %d (%f <= %f)", apa, face, i, z, prev)
				}
				prev = z
			}
		}
	}

	// Both faces cover the same z range.
	a := g.CollectionZ(g.GlobalChannel(0, ViewX, 5))
	b := g.CollectionZ(g.GlobalChannel(0, ViewX, half+5))
	assert.Equal(t, a, b)

	// APA pairs are offset along z.
	z0 := g.CollectionZ(g.GlobalChannel(0, ViewX, 0))
	z2 := g.CollectionZ(g.GlobalChannel(2, ViewX, 0))
	assert.InDelta(t, g.APALength+g.APAOffset, z2-z0, 1e-9)
}

func TestDriftX_StrictlyMonotonicInTime(t *testing.T) {
	g := Default()
	first := g.GlobalChannel(0, ViewX, 10)
	second := g.GlobalChannel(0, ViewX, g.XChannels/2+10)

	assert.Equal(t, -1.0, g.DriftSign(first))
	assert.Equal(t, 1.0, g.DriftSign(second))
	assert.Equal(t, 0.0, g.DriftSign(5))

	prevNeg, prevPos := math.Inf(1), math.Inf(-1)
	for tick := int64(0); tick < 5000; tick += 7 {
		pn, _ := g.Position(first, tick)
		pp, _ := g.Position(second, tick)
		if pn.X >= prevNeg {
			t.Fatalf("first face x not decreasing at tick %d", tick)
		}
		if pp.X <= prevPos {
			t.Fatalf("second face x not increasing at tick %d", tick)
		}
		prevNeg, prevPos = pn.X, pp.X
	}
}

func TestDriftDistance_FromAPACentre(t *testing.T) {
	g := Default()
	require.Positive(t, g.APAWidth)

	assert.InDelta(t, g.APAWidth/2, g.DriftDistance(0), 1e-9)
	assert.InDelta(t, g.APAWidth/2+1000*g.TimeTickCM, g.DriftDistance(1000), 1e-9)

	// A pulse at tick 0 still sits off the centre plane, on its own face.
	pn, _ := g.Position(g.GlobalChannel(0, ViewX, 10), 0)
	pp, _ := g.Position(g.GlobalChannel(0, ViewX, g.XChannels/2+10), 0)
	assert.Less(t, pn.X, 0.0)
	assert.Greater(t, pp.X, 0.0)
}

func TestFoldTime(t *testing.T) {
	cfg := config.DefaultTuningConfig()
	offset := int64(8000)
	cfg.EventsOffsetTicks = &offset
	g := New(cfg)

	assert.Equal(t, int64(100), g.FoldTime(8100))
	assert.Equal(t, int64(7900), g.FoldTime(-100))
	assert.InDelta(t, g.DriftDistance(100), g.DriftDistance(16100), 1e-9)

	unfolded := Default()
	assert.Equal(t, int64(16100), unfolded.FoldTime(16100))
}

func TestWirePitchUV_DerivedFromDiagonal(t *testing.T) {
	g := Default()
	want := 0.4669 / math.Sin(54.3*math.Pi/180)
	if !floatEquals(g.WirePitchUV, want, 1e-12) {
		t.Errorf("WirePitchUV = %f, want %f", g.WirePitchUV, want)
	}
	if !floatEquals(g.AngularCoefficient(), math.Tan(54.3*math.Pi/180), 1e-12) {
		t.Errorf("AngularCoefficient = %f", g.AngularCoefficient())
	}
}

// For a wire built by the forward map through a known (y, z), the inverse
// recovers y to within one wire pitch on every (view, parity, side) branch,
// including positions that need the wrap branch.
func TestInductionY_InverseConsistency(t *testing.T) {
	g := Default()
	wrapped := 0

	for _, v := range []View{ViewU, ViewV} {
		for apa := uint64(0); apa < 4; apa++ {
			for _, sign := range []float64{-1, 1} {
				for z := 5.0; z < 225; z += 17.5 {
					for y := 10.0; y < 590; y += 23.0 {
						zAbs := z + g.chainOffset(apa)
						ch := g.InductionChannel(v, apa, zAbs, y, sign)

						c := g.Decode(ch)
						require.Equal(t, v, c.View)
						require.Equal(t, apa, c.APA)

						got := g.InductionY(ch, zAbs, sign)
						if math.Abs(got-y) > g.WirePitchUV {
							t.Fatalf("view %v apa %d sign %v z %.1f: InductionY = %.3f, want %.3f", v, apa, sign, z, got, y)
						}

						target, dir := g.windingBranch(v, apa, z, sign)
						if dir*(target-float64(c.ViewIndex)*g.WirePitchUV) < 0 {
							wrapped++
						}
					}
				}
			}
		}
	}

	if wrapped == 0 {
		t.Error("no sampled position exercised the wrap branch")
	}
}

func TestInductionY_UAndVDiffer(t *testing.T) {
	g := Default()
	z, y := 100.0, 200.0
	u := g.InductionChannel(ViewU, 0, z, y, 1)
	v := g.InductionChannel(ViewV, 0, z, y, 1)
	assert.Equal(t, ViewU, g.ViewOf(u))
	assert.Equal(t, ViewV, g.ViewOf(v))
	assert.NotEqual(t, g.Decode(u).ViewIndex, g.Decode(v).ViewIndex)
}

func TestClusterInductionY(t *testing.T) {
	g := Default()
	z := 100.0

	ys, mean := g.ClusterInductionY(nil, z, 1)
	assert.Nil(t, ys)
	assert.Equal(t, 0.0, mean)

	chs := []uint64{
		g.InductionChannel(ViewU, 0, z, 100, 1),
		g.InductionChannel(ViewU, 0, z, 110, 1),
	}
	ys, mean = g.ClusterInductionY(chs, z, 1)
	require.Len(t, ys, 2)
	assert.InDelta(t, (ys[0]+ys[1])/2, mean, 1e-9)
	assert.InDelta(t, 105, mean, g.WirePitchUV)
}

func TestPointHelpers(t *testing.T) {
	a := Point{X: 3, Y: 4, Z: 0}
	assert.Equal(t, 5.0, a.Norm())
	assert.InDelta(t, 1.0, a.Unit().Norm(), 1e-12)
	assert.Equal(t, Point{}, Point{}.Unit())

	b := Point{X: 0, Y: 100, Z: 4}
	assert.Equal(t, 5.0, a.DistanceXZ(b))
	assert.InDelta(t, math.Sqrt(9+96*96+16), a.Distance(b), 1e-9)
}
