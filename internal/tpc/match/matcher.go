package match

import (
	"math"
	"sort"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/cluster"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// searchBackstep widens the binary-search lower bound by this many clusters.
const searchBackstep = 10

// Triple is a matched (U, V, X) set and the cluster built by joining them.
type Triple struct {
	U, V, X *cluster.Cluster
	YU, YV  float64
	Joined  *cluster.Cluster
}

// Compatible reports whether u, v and x describe one object within radius r,
// and returns the mean U and V heights at x's z. Clusters from different
// APAs, or not on the U, V and X planes respectively, are never compatible.
func Compatible(geom geometry.Geometry, u, v, x *cluster.Cluster, r float64) (ok bool, yu, yv float64) {
	if u.APA != x.APA || v.APA != x.APA {
		return false, 0, 0
	}
	if u.View != geometry.ViewU || v.View != geometry.ViewV || x.View != geometry.ViewX {
		return false, 0, 0
	}

	ax, au, av := math.Abs(x.RecoPos.X), math.Abs(u.RecoPos.X), math.Abs(v.RecoPos.X)
	dx := math.Max(math.Abs(au-ax), math.Max(math.Abs(av-ax), math.Abs(au-av)))
	if dx > r {
		return false, 0, 0
	}

	z, sign := x.RecoPos.Z, x.DriftSign()
	ysU, yu := geom.ClusterInductionY(u.Channels(), z, sign)
	ysV, yv := geom.ClusterInductionY(v.Channels(), z, sign)

	for _, a := range ysU {
		for _, b := range ysV {
			if math.Abs(a-b) <= r {
				return true, yu, yv
			}
		}
	}
	return false, yu, yv
}

// Join concatenates the X, U and V members into one cluster positioned at
// (x.x, (yu+yv)/2, x.z). Truth fields come from x.
func Join(u, v, x *cluster.Cluster, yu, yv float64) *cluster.Cluster {
	joined := *x
	joined.TPs = make([]*event.TriggerPrimitive, 0, x.Size()+u.Size()+v.Size())
	joined.TPs = append(joined.TPs, x.TPs...)
	joined.TPs = append(joined.TPs, u.TPs...)
	joined.TPs = append(joined.TPs, v.TPs...)
	joined.RecoPos = geometry.Point{X: x.RecoPos.X, Y: (yu + yv) / 2, Z: x.RecoPos.Z}
	joined.TotalCharge = x.TotalCharge + u.TotalCharge + v.TotalCharge
	return &joined
}

// Matcher finds three-view triples among aggregated clusters.
type Matcher struct {
	geom   geometry.Geometry
	radius float64
	window int64
}

// NewMatcher returns a matcher with radius r (cm) and a time window in TPC
// ticks around each collection cluster.
func NewMatcher(geom geometry.Geometry, r float64, window int64) *Matcher {
	return &Matcher{geom: geom, radius: r, window: window}
}

// NewMatcherFromConfig reads the radius and window from cfg.
func NewMatcherFromConfig(geom geometry.Geometry, cfg *config.TuningConfig) *Matcher {
	return NewMatcher(geom, cfg.GetMatchRadiusCM(), cfg.GetMatchTimeWindowTicks())
}

type groupKey struct {
	event int64
	apa   uint64
}

type planes struct {
	u, v, x []*cluster.Cluster
}

// Match returns, for every X cluster in input order, the first compatible
// (U, V) pair found in time order.
func (m *Matcher) Match(clusters []*cluster.Cluster) []Triple {
	groups := make(map[groupKey]*planes)
	var order []groupKey
	for _, c := range clusters {
		k := groupKey{c.Event, c.APA}
		g, ok := groups[k]
		if !ok {
			g = &planes{}
			groups[k] = g
			order = append(order, k)
		}
		switch c.View {
		case geometry.ViewU:
			g.u = append(g.u, c)
		case geometry.ViewV:
			g.v = append(g.v, c)
		default:
			g.x = append(g.x, c)
		}
	}

	var out []Triple
	for _, k := range order {
		g := groups[k]
		if len(g.x) == 0 || len(g.u) == 0 || len(g.v) == 0 {
			continue
		}
		sortByEarliest(g.u)
		sortByEarliest(g.v)
		used := make(map[*cluster.Cluster]bool)
		for _, x := range g.x {
			if t, ok := m.matchOne(x, g.u, g.v, used); ok {
				used[t.U], used[t.V] = true, true
				out = append(out, t)
			}
		}
	}

	if len(clusters) > 0 {
		monitoring.Logf("[Matcher] %d three-view matches from %d clusters", len(out), len(clusters))
	}
	return out
}

// matchOne returns the first compatible (U, V) pair for x among the
// clusters not yet used by another triple.
func (m *Matcher) matchOne(x *cluster.Cluster, us, vs []*cluster.Cluster, used map[*cluster.Cluster]bool) (Triple, bool) {
	tx := x.EarliestTime()
	for _, u := range m.inWindow(us, tx) {
		if used[u] {
			continue
		}
		for _, v := range m.inWindow(vs, tx) {
			if used[v] {
				continue
			}
			ok, yu, yv := Compatible(m.geom, u, v, x, m.radius)
			if ok {
				return Triple{U: u, V: v, X: x, YU: yu, YV: yv, Joined: Join(u, v, x, yu, yv)}, true
			}
		}
	}
	return Triple{}, false
}

// inWindow returns the clusters of sorted whose earliest time lies within
// the window around t.
func (m *Matcher) inWindow(sorted []*cluster.Cluster, t int64) []*cluster.Cluster {
	lo, hi := t-m.window, t+m.window
	start := sort.Search(len(sorted), func(i int) bool { return sorted[i].EarliestTime() >= lo })
	start -= searchBackstep
	if start < 0 {
		start = 0
	}

	var out []*cluster.Cluster
	for _, c := range sorted[start:] {
		ct := c.EarliestTime()
		if ct > hi {
			break
		}
		if ct >= lo {
			out = append(out, c)
		}
	}
	return out
}

func sortByEarliest(cs []*cluster.Cluster) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].EarliestTime() < cs[j].EarliestTime() })
}
