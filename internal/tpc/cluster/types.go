package cluster

import (
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// Cluster is an ordered group of TPs from one plane of one APA.
type Cluster struct {
	Event int64
	APA   uint64
	View  geometry.View
	TPs   []*event.TriggerPrimitive

	// Summary, filled by Aggregator.
	RecoPos            geometry.Point
	TotalCharge        int64
	TrueLabel          string
	TrueInteraction    event.Interaction
	TrueDir            geometry.Point
	TruePos            geometry.Point
	TrueParticleEnergy float64
	TrueNeutrinoEnergy float64
	SupernovaFraction  float64
	GeneratorFraction  float64
	MinDistance        float64 // -1 when no supernova TP could be placed
}

// Size returns the number of member TPs.
func (c *Cluster) Size() int {
	return len(c.TPs)
}

// EarliestTime returns the smallest member time_start.
func (c *Cluster) EarliestTime() int64 {
	if len(c.TPs) == 0 {
		return 0
	}
	t := c.TPs[0].TimeStart
	for _, tp := range c.TPs[1:] {
		if tp.TimeStart < t {
			t = tp.TimeStart
		}
	}
	return t
}

// LatestTime returns the largest member time_start.
func (c *Cluster) LatestTime() int64 {
	if len(c.TPs) == 0 {
		return 0
	}
	t := c.TPs[0].TimeStart
	for _, tp := range c.TPs[1:] {
		if tp.TimeStart > t {
			t = tp.TimeStart
		}
	}
	return t
}

// Channels returns the member channels in TP order.
func (c *Cluster) Channels() []uint64 {
	out := make([]uint64, len(c.TPs))
	for i, tp := range c.TPs {
		out[i] = tp.Channel
	}
	return out
}

// ADCIntegral returns the summed adc_integral of the members.
func (c *Cluster) ADCIntegral() int64 {
	var sum int64
	for _, tp := range c.TPs {
		sum += tp.ADCIntegral
	}
	return sum
}

// DriftSign returns the sign of the reconstructed x.
func (c *Cluster) DriftSign() float64 {
	if c.RecoPos.X < 0 {
		return -1
	}
	return 1
}
