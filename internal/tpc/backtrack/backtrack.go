package backtrack

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/units"
)

// Offset acceptance bounds, in TPC ticks.
const (
	MinOffsetSamples = 3
	MinOffsetTicks   = 1000
	MaxOffsetTicks   = 200000
)

// Params configures the backtracker.
type Params struct {
	Conversion       int64   // TDC → TPC factor
	ErrorMargin      int64   // phase-one window margin, in units of Conversion
	TimeTolerance    int64   // phase-two time tolerance, TPC ticks
	ChannelTolerance int64   // phase-two channel tolerance
	ChannelWeight    float64 // phase-two score weight per channel of distance
}

// ParamsFromConfig reads the backtracker parameters from cfg.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		Conversion:       cfg.GetConversionTDCToTPC(),
		ErrorMargin:      cfg.GetBacktrackerErrorMargin(),
		TimeTolerance:    cfg.GetTimeToleranceTicks(),
		ChannelTolerance: cfg.GetChannelTolerance(),
		ChannelWeight:    cfg.GetChannelDistanceWeight(),
	}
}

// Result summarises one Run.
type Result struct {
	WindowMatches  int
	Offset         int64
	OffsetSamples  []float64
	DepositMatches int
	Unmatched      int
}

// Backtracker links TPs to true particles.
type Backtracker struct {
	geom   geometry.Geometry
	params Params
}

// New returns a Backtracker for the given geometry and parameters.
func New(geom geometry.Geometry, params Params) *Backtracker {
	return &Backtracker{geom: geom, params: params}
}

// Params returns the current parameters.
func (b *Backtracker) Params() Params {
	return b.params
}

// window returns the phase-one half-width W = (1 + margin) × conversion.
func (b *Backtracker) window() int64 {
	return (1 + b.params.ErrorMargin) * b.params.Conversion
}

// MatchWindows is phase one. Each TP is linked to the first particle, in
// store order, that touched its channel and whose window widened by W
// contains the TP start. It returns the number of linked TPs.
func (b *Backtracker) MatchWindows(s *event.Store) int {
	type chanKey struct {
		event   int64
		channel uint64
	}
	byChannel := make(map[chanKey][]*event.TrueParticle)
	for _, p := range s.Particles {
		for ch := range p.Channels {
			k := chanKey{p.Event, ch}
			byChannel[k] = append(byChannel[k], p)
		}
	}

	w := b.window()
	matched := 0
	for _, tp := range s.TPs {
		tp.Truth = nil
		for _, p := range byChannel[chanKey{tp.Event, tp.Channel}] {
			if tp.TimeStart >= p.TimeStart-w && tp.TimeStart <= p.TimeEnd+w {
				tp.Truth = p
				matched++
				break
			}
		}
	}
	return matched
}

// EstimateOffset is phase one b. For every wire holding both a TP and a
// deposition it takes Δ = earliest deposition time − earliest TP start, in
// TPC ticks. With at least MinOffsetSamples positive samples whose median
// lies in [MinOffsetTicks, MaxOffsetTicks] the median is returned; otherwise
// the offset is zero. The positive samples are returned in ascending order.
func (b *Backtracker) EstimateOffset(s *event.Store) (int64, []float64) {
	type chanKey struct {
		event   int64
		channel uint64
	}
	earliestTP := make(map[chanKey]int64)
	for _, tp := range s.TPs {
		k := chanKey{tp.Event, tp.Channel}
		if t, ok := earliestTP[k]; !ok || tp.TimeStart < t {
			earliestTP[k] = tp.TimeStart
		}
	}
	earliestDep := make(map[chanKey]int64)
	for _, d := range s.Deposits {
		k := chanKey{d.Event, d.Channel}
		t := units.TDCToTPC(d.Timestamp, b.params.Conversion)
		if cur, ok := earliestDep[k]; !ok || t < cur {
			earliestDep[k] = t
		}
	}

	var samples []float64
	for k, tDep := range earliestDep {
		tTP, ok := earliestTP[k]
		if !ok {
			continue
		}
		if delta := tDep - tTP; delta > 0 {
			samples = append(samples, float64(delta))
		}
	}
	sort.Float64s(samples)

	if len(samples) < MinOffsetSamples {
		return 0, samples
	}
	median := stat.Quantile(0.5, stat.Empirical, samples, nil)
	if median < MinOffsetTicks || median > MaxOffsetTicks {
		return 0, samples
	}
	return int64(math.Round(median)), samples
}

// AlignedTime converts a deposition timestamp to TPC ticks, widening before
// the multiplication, and removes the event offset.
func AlignedTime(timestamp, conversion, offset int64) int64 {
	return units.TDCToTPC(timestamp, conversion) - offset
}

type deposit struct {
	time     int64
	particle *event.TrueParticle
}

type depKey struct {
	event   int64
	channel uint64
}

// indexDeposits groups depositions with a known particle by wire, each wire
// sorted by aligned time.
func (b *Backtracker) indexDeposits(s *event.Store, offset int64) map[depKey][]deposit {
	idx := make(map[depKey][]deposit)
	for _, d := range s.Deposits {
		p := s.ParticleByTrackID(d.Event, d.TrackID)
		if p == nil {
			continue
		}
		k := depKey{d.Event, d.Channel}
		idx[k] = append(idx[k], deposit{
			time:     AlignedTime(d.Timestamp, b.params.Conversion, offset),
			particle: p,
		})
	}
	for _, deps := range idx {
		sort.SliceStable(deps, func(i, j int) bool { return deps[i].time < deps[j].time })
	}
	return idx
}

// MatchDepositions is phase two. All links are cleared, then every TP is
// linked to the particle of the deposition minimising
// |Δt| + weight × |Δchannel| within the tolerances, preferring depositions
// on the TP's own plane. It returns the number of linked TPs.
func (b *Backtracker) MatchDepositions(s *event.Store, offset int64) int {
	s.ClearTruthLinks()
	idx := b.indexDeposits(s, offset)

	tolCh := uint64(b.params.ChannelTolerance)
	tolT := b.params.TimeTolerance
	matched := 0

	for _, tp := range s.TPs {
		view := b.geom.ViewOf(tp.Channel)

		lo := uint64(0)
		if tp.Channel > tolCh {
			lo = tp.Channel - tolCh
		}
		hi := tp.Channel + tolCh

		var bestSame, bestCross *event.TrueParticle
		scoreSame, scoreCross := math.Inf(1), math.Inf(1)

		for ch := lo; ch <= hi; ch++ {
			deps := idx[depKey{tp.Event, ch}]
			if len(deps) == 0 {
				continue
			}
			dch := math.Abs(float64(int64(ch) - int64(tp.Channel)))
			same := b.geom.ViewOf(ch) == view

			first := sort.Search(len(deps), func(i int) bool { return deps[i].time >= tp.TimeStart-tolT })
			for i := first; i < len(deps) && deps[i].time <= tp.TimeStart+tolT; i++ {
				dt := math.Abs(float64(deps[i].time - tp.TimeStart))
				score := dt + b.params.ChannelWeight*dch
				if same {
					if score < scoreSame {
						scoreSame, bestSame = score, deps[i].particle
					}
				} else if score < scoreCross {
					scoreCross, bestCross = score, deps[i].particle
				}
			}
		}

		switch {
		case bestSame != nil:
			tp.Truth = bestSame
		case bestCross != nil:
			tp.Truth = bestCross
		}
		if tp.Truth != nil {
			matched++
		}
	}
	return matched
}

// Run executes both phases on s and applies the estimated offset to the
// particle windows.
func (b *Backtracker) Run(s *event.Store) Result {
	var res Result
	res.WindowMatches = b.MatchWindows(s)
	res.Offset, res.OffsetSamples = b.EstimateOffset(s)
	s.ApplyTimeOffset(res.Offset)
	res.DepositMatches = b.MatchDepositions(s, res.Offset)
	res.Unmatched = len(s.TPs) - res.DepositMatches

	if res.Offset != 0 {
		monitoring.Logf("[Backtracker] event %d: offset %d ticks from %d wires", s.Event, res.Offset, len(res.OffsetSamples))
	}
	monitoring.Logf("[Backtracker] event %d: %d/%d TPs matched (phase one %d)",
		s.Event, res.DepositMatches, len(s.TPs), res.WindowMatches)
	return res
}
