package cluster

import (
	"sort"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// ClustererInterface abstracts the single-plane clustering implementation so
// the pipeline can be driven with alternative strategies in tests.
type ClustererInterface interface {
	// Cluster groups time-sorted TPs. Clusters are returned in the order
	// their last TP arrived.
	Cluster(tps []*event.TriggerPrimitive) []*Cluster

	// GetParams returns the current clustering parameters.
	GetParams() Params

	// SetParams updates the clustering parameters.
	SetParams(params Params)
}

// Params holds the clustering thresholds.
type Params struct {
	TicksLimit     int64  // max gap between a TP start and a cluster's latest end
	ChannelLimit   int64  // max wire distance to any member
	MinTPs         int    // clusters smaller than this are dropped
	ADCIntegralCut int64  // clusters must exceed this summed adc_integral
	SampleLength   int64  // ticks per sample when computing TP end times
	MergePolicy    string // config.MergePolicyMerge or config.MergePolicyLegacyDuplicate
}

// ParamsFromConfig reads the clustering thresholds from cfg.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		TicksLimit:     cfg.GetTicksLimit(),
		ChannelLimit:   cfg.GetChannelLimit(),
		MinTPs:         cfg.GetMinTPsToCluster(),
		ADCIntegralCut: cfg.GetADCIntegralCut(),
		SampleLength:   cfg.GetSampleLengthTicks(),
		MergePolicy:    cfg.GetMergePolicy(),
	}
}

// Clusterer is the streaming buffer-based merger for one plane of one event.
type Clusterer struct {
	geom   geometry.Geometry
	params Params
}

// NewClusterer creates a clusterer with the given thresholds.
func NewClusterer(geom geometry.Geometry, params Params) *Clusterer {
	return &Clusterer{geom: geom, params: params}
}

// GetParams returns the current clustering parameters.
func (c *Clusterer) GetParams() Params {
	return c.params
}

// SetParams updates the clustering parameters.
func (c *Clusterer) SetParams(params Params) {
	c.params = params
}

// ChannelCompatible reports whether two channels are close enough to belong
// to the same cluster: same APA and view, and within the channel limit.
// Induction planes wrap, so two wires at opposite ends of the view are also
// compatible.
func ChannelCompatible(geom geometry.Geometry, a, b uint64, limit int64) bool {
	ca, cb := geom.Decode(a), geom.Decode(b)
	if ca.APA != cb.APA || ca.View != cb.View {
		return false
	}
	d := ca.ViewIndex - cb.ViewIndex
	if cb.ViewIndex > ca.ViewIndex {
		d = cb.ViewIndex - ca.ViewIndex
	}
	if limit < 0 {
		return false
	}
	lim := uint64(limit)
	if d <= lim {
		return true
	}
	if !ca.View.Induction() {
		return false
	}
	n := geom.ViewSize(ca.View)
	return n > lim && d >= n-lim
}

// ChannelCompatible applies the package function with this clusterer's
// geometry and channel limit.
func (c *Clusterer) ChannelCompatible(a, b uint64) bool {
	return ChannelCompatible(c.geom, a, b, c.params.ChannelLimit)
}

// candidate is an open cluster in the buffer.
type candidate struct {
	tps    []*event.TriggerPrimitive
	order  []int // arrival index of each TP
	maxEnd int64
	adcSum int64
	last   int // arrival index of the most recent TP
}

func (c *Clusterer) newCandidate(tp *event.TriggerPrimitive, idx int) *candidate {
	cand := &candidate{}
	c.add(cand, tp, idx)
	return cand
}

func (c *Clusterer) add(cand *candidate, tp *event.TriggerPrimitive, idx int) {
	end := tp.TimeEnd(c.params.SampleLength)
	if len(cand.tps) == 0 || end > cand.maxEnd {
		cand.maxEnd = end
	}
	cand.tps = append(cand.tps, tp)
	cand.order = append(cand.order, idx)
	cand.adcSum += tp.ADCIntegral
	if idx > cand.last {
		cand.last = idx
	}
}

func (c *Clusterer) timeClose(cand *candidate, tp *event.TriggerPrimitive) bool {
	return tp.TimeStart-cand.maxEnd <= c.params.TicksLimit
}

func (c *Clusterer) channelClose(cand *candidate, tp *event.TriggerPrimitive) bool {
	for _, u := range cand.tps {
		if c.ChannelCompatible(tp.Channel, u.Channel) {
			return true
		}
	}
	return false
}

func (c *Clusterer) passes(cand *candidate) bool {
	return len(cand.tps) >= c.params.MinTPs && cand.adcSum > c.params.ADCIntegralCut
}

// Cluster runs the streaming merge over tps, which must be sorted by
// time_start. A candidate that is no longer time-close to the incoming TP
// can never become so again and is closed immediately.
func (c *Clusterer) Cluster(tps []*event.TriggerPrimitive) []*Cluster {
	if len(tps) == 0 {
		return nil
	}

	var emitted []*candidate
	emit := func(cand *candidate) {
		if c.passes(cand) {
			emitted = append(emitted, cand)
		}
	}

	var buffer []*candidate
	for idx, tp := range tps {
		var open []*candidate
		var joinable []int // indexes into open
		for _, cand := range buffer {
			if !c.timeClose(cand, tp) {
				emit(cand)
				continue
			}
			if c.channelClose(cand, tp) {
				joinable = append(joinable, len(open))
			}
			open = append(open, cand)
		}

		switch len(joinable) {
		case 0:
			buffer = append(open, c.newCandidate(tp, idx))
		case 1:
			c.add(open[joinable[0]], tp, idx)
			buffer = open
		default:
			buffer = c.merge(open, joinable, tp, idx)
		}
	}
	for _, cand := range buffer {
		emit(cand)
	}

	sort.SliceStable(emitted, func(i, j int) bool { return emitted[i].last < emitted[j].last })

	out := make([]*Cluster, len(emitted))
	for i, cand := range emitted {
		out[i] = c.toCluster(cand)
	}
	return out
}

// merge folds every joinable candidate and tp into the first joinable one.
// Under the legacy policy the other candidates' TPs are copied, not moved,
// and the originals stay open.
func (c *Clusterer) merge(open []*candidate, joinable []int, tp *event.TriggerPrimitive, idx int) []*candidate {
	target := open[joinable[0]]

	if c.params.MergePolicy == config.MergePolicyLegacyDuplicate {
		c.add(target, tp, idx)
		for _, j := range joinable[1:] {
			other := open[j]
			for k, u := range other.tps {
				c.add(target, u, other.order[k])
			}
		}
		return open
	}

	absorbed := make(map[int]bool, len(joinable)-1)
	for _, j := range joinable[1:] {
		other := open[j]
		for k, u := range other.tps {
			c.add(target, u, other.order[k])
		}
		absorbed[j] = true
	}
	c.add(target, tp, idx)
	sortByArrival(target)

	kept := open[:0]
	for j, cand := range open {
		if !absorbed[j] {
			kept = append(kept, cand)
		}
	}
	return kept
}

func sortByArrival(cand *candidate) {
	sort.Sort(byArrival{cand})
}

type byArrival struct{ *candidate }

func (b byArrival) Len() int           { return len(b.tps) }
func (b byArrival) Less(i, j int) bool { return b.order[i] < b.order[j] }
func (b byArrival) Swap(i, j int) {
	b.tps[i], b.tps[j] = b.tps[j], b.tps[i]
	b.order[i], b.order[j] = b.order[j], b.order[i]
}

func (c *Clusterer) toCluster(cand *candidate) *Cluster {
	first := c.geom.Decode(cand.tps[0].Channel)
	tps := make([]*event.TriggerPrimitive, len(cand.tps))
	copy(tps, cand.tps)
	return &Cluster{
		Event:       cand.tps[0].Event,
		APA:         first.APA,
		View:        first.View,
		TPs:         tps,
		TotalCharge: cand.adcSum,
		MinDistance: -1,
	}
}

// Verify at compile time that *Clusterer implements ClustererInterface.
var _ ClustererInterface = (*Clusterer)(nil)
