package geometry

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/units"
)

// Channel partition of one APA: [0, 800) U, [800, 1600) V, [1600, 2560) X.
const (
	DefaultChannelsPerAPA = 2560
	DefaultUChannels      = 800
	DefaultVChannels      = 800
	DefaultXChannels      = 960
)

// Geometry holds the fixed per-experiment constants. All lengths are in cm.
//
// APAs are numbered along the detector in pairs: the even member of a pair is
// the lower APA and the odd member is mounted above it, upside down. Pairs are
// stacked along z, separated by APAOffset.
type Geometry struct {
	ChannelsPerAPA uint64
	UChannels      uint64
	VChannels      uint64
	XChannels      uint64
	NumAPAs        uint64

	APALength float64
	APAHeight float64
	APAWidth  float64
	APAOffset float64 // gap between consecutive APA pairs along z

	WirePitchX  float64 // collection wire spacing along z
	WirePitchUV float64 // induction wire spacing along z
	WireAngle   float64 // induction wire angle to the z axis, radians

	TimeTickCM   float64 // drift distance per TPC tick
	EventsOffset int64   // ticks per event used to fold time_start; 0 disables folding
}

// New builds a Geometry from the tuning config.
func New(cfg *config.TuningConfig) Geometry {
	angle := cfg.GetWireAngleDeg() * math.Pi / 180
	return Geometry{
		ChannelsPerAPA: DefaultChannelsPerAPA,
		UChannels:      DefaultUChannels,
		VChannels:      DefaultVChannels,
		XChannels:      DefaultXChannels,
		NumAPAs:        uint64(cfg.GetNumAPAs()),
		APALength:      cfg.GetAPALengthCM(),
		APAHeight:      cfg.GetAPAHeightCM(),
		APAWidth:       cfg.GetAPAWidthCM(),
		APAOffset:      cfg.GetAPAOffsetCM(),
		WirePitchX:     cfg.GetWirePitchCollectionCM(),
		WirePitchUV:    cfg.GetWirePitchInductionDiagonalCM() / math.Sin(angle),
		WireAngle:      angle,
		TimeTickCM:     cfg.GetTimeTickCM(),
		EventsOffset:   cfg.GetEventsOffsetTicks(),
	}
}

// Default returns the geometry built from the compiled-in tuning defaults.
func Default() Geometry {
	return New(config.EmptyTuningConfig())
}

// AngularCoefficient returns tan of the induction wire angle: the rise in y
// per cm travelled along z on an induction wire.
func (g Geometry) AngularCoefficient() float64 {
	return math.Tan(g.WireAngle)
}

// MaxChannel returns one past the highest valid global channel.
func (g Geometry) MaxChannel() uint64 {
	return g.NumAPAs * g.ChannelsPerAPA
}

// ValidChannel reports whether ch lies within the detector.
func (g Geometry) ValidChannel(ch uint64) bool {
	return ch < g.MaxChannel()
}

// ViewSize returns the number of channels of view v in one APA.
func (g Geometry) ViewSize(v View) uint64 {
	switch v {
	case ViewU:
		return g.UChannels
	case ViewV:
		return g.VChannels
	default:
		return g.XChannels
	}
}

// firstChannel returns the APA-local channel at which view v starts.
func (g Geometry) firstChannel(v View) uint64 {
	switch v {
	case ViewU:
		return 0
	case ViewV:
		return g.UChannels
	default:
		return g.UChannels + g.VChannels
	}
}

// Decode splits a global channel into APA, local channel and view.
func (g Geometry) Decode(ch uint64) Channel {
	c := Channel{
		Global: ch,
		APA:    ch / g.ChannelsPerAPA,
		Local:  ch % g.ChannelsPerAPA,
	}
	switch {
	case c.Local < g.UChannels:
		c.View = ViewU
	case c.Local < g.UChannels+g.VChannels:
		c.View = ViewV
	default:
		c.View = ViewX
	}
	c.ViewIndex = c.Local - g.firstChannel(c.View)
	return c
}

// ViewOf returns the plane of a global channel.
func (g Geometry) ViewOf(ch uint64) View {
	return g.Decode(ch).View
}

// APAOf returns the APA index of a global channel.
func (g Geometry) APAOf(ch uint64) uint64 {
	return ch / g.ChannelsPerAPA
}

// GlobalChannel is the inverse of Decode.
func (g Geometry) GlobalChannel(apa uint64, v View, viewIndex uint64) uint64 {
	return apa*g.ChannelsPerAPA + g.firstChannel(v) + viewIndex
}

// chainOffset is the z position of the APA pair that holds apa.
func (g Geometry) chainOffset(apa uint64) float64 {
	return float64(apa/2) * (g.APALength + g.APAOffset)
}

// DriftSign returns -1 for collection wires on the first face of the APA,
// +1 for the second face, and 0 for induction wires whose face cannot be
// told from the channel alone.
func (g Geometry) DriftSign(ch uint64) float64 {
	c := g.Decode(ch)
	if c.View != ViewX {
		return 0
	}
	if c.ViewIndex < g.XChannels/2 {
		return -1
	}
	return 1
}

// FoldTime maps time_start into the per-event interval [0, EventsOffset).
func (g Geometry) FoldTime(t int64) int64 {
	if g.EventsOffset <= 0 {
		return t
	}
	r := t % g.EventsOffset
	if r < 0 {
		r += g.EventsOffset
	}
	return r
}

// DriftDistance returns the unsigned distance from the anode plane for a
// pulse starting at tick t.
func (g Geometry) DriftDistance(t int64) float64 {
	return units.TicksToCM(g.FoldTime(t), g.TimeTickCM) + g.APAWidth/2
}

// CollectionZ returns z of a collection wire. Both faces of an APA cover the
// same z range, so the wire index is folded onto one face.
func (g Geometry) CollectionZ(ch uint64) float64 {
	c := g.Decode(ch)
	half := g.XChannels / 2
	return g.WirePitchX*float64(1+c.ViewIndex%half) + g.chainOffset(c.APA)
}

// Position maps a pulse to detector coordinates. Collection-plane pulses get
// a full (x, 0, z) position and ok=true. Induction pulses only fix the
// unsigned drift distance, returned in X with ok=false.
func (g Geometry) Position(ch uint64, t int64) (p Point, ok bool) {
	sign := g.DriftSign(ch)
	if sign == 0 {
		return Point{X: g.DriftDistance(t)}, false
	}
	return Point{
		X: sign * g.DriftDistance(t),
		Y: 0,
		Z: g.CollectionZ(ch),
	}, true
}

// turnLength is the z length of one full wrap of an induction wire bundle
// around the APA frame.
func (g Geometry) turnLength(v View) float64 {
	return float64(g.ViewSize(v)) * g.WirePitchUV
}

// windingBranch resolves the unrolled target position on the wire bundle and
// the winding direction for one of the four (APA parity, drift side)
// combinations. U wires rise with z, V wires fall; an upside-down (odd) APA
// reverses both.
func (g Geometry) windingBranch(v View, apa uint64, zLocal, sign float64) (target, dir float64) {
	turn := g.turnLength(v)
	dir = 1
	if v == ViewV {
		dir = -1
	}

	odd := apa%2 == 1
	switch {
	case !odd && sign >= 0:
		target = zLocal
	case !odd && sign < 0:
		target = turn - zLocal
	case odd && sign >= 0:
		target, dir = zLocal, -dir
	default:
		target, dir = turn-zLocal, -dir
	}
	return target, dir
}

// InductionY returns the height at which induction wire ch crosses z on the
// drift side given by sign (the sign of the matching collection x).
//
// A wire that starts past the crossing point (in wire-index space) only
// reaches z after wrapping round the frame, in which case the distance
// until the turn plus the remaining tail is used as the ordinate.
func (g Geometry) InductionY(ch uint64, z, sign float64) float64 {
	c := g.Decode(ch)
	zLocal := z - g.chainOffset(c.APA)
	target, dir := g.windingBranch(c.View, c.APA, zLocal, sign)

	turn := g.turnLength(c.View)
	start := float64(c.ViewIndex) * g.WirePitchUV
	threshold := target / g.WirePitchUV

	var ordinate float64
	if dir > 0 {
		if float64(c.ViewIndex) <= threshold {
			ordinate = target - start
		} else {
			untilTurn := turn - start
			ordinate = untilTurn + target
		}
	} else {
		if float64(c.ViewIndex) >= threshold {
			ordinate = start - target
		} else {
			ordinate = start + (turn - target)
		}
	}

	yLocal := ordinate * g.AngularCoefficient()
	if c.APA%2 == 1 {
		return g.APAHeight - yLocal
	}
	return yLocal
}

// InductionChannel is the forward map for induction planes: it returns the
// global channel of the view-v wire passing through (y, z) on the drift side
// given by sign.
func (g Geometry) InductionChannel(v View, apa uint64, z, y, sign float64) uint64 {
	yLocal := y
	if apa%2 == 1 {
		yLocal = g.APAHeight - y
	}
	zLocal := z - g.chainOffset(apa)
	target, dir := g.windingBranch(v, apa, zLocal, sign)

	turn := g.turnLength(v)
	start := math.Mod(target-dir*yLocal/g.AngularCoefficient(), turn)
	if start < 0 {
		start += turn
	}
	idx := uint64(math.Round(start/g.WirePitchUV)) % g.ViewSize(v)
	return g.GlobalChannel(apa, v, idx)
}

// ClusterInductionY evaluates InductionY for every channel and returns the
// per-channel heights and their mean.
func (g Geometry) ClusterInductionY(channels []uint64, z, sign float64) (ys []float64, mean float64) {
	if len(channels) == 0 {
		return nil, 0
	}
	ys = make([]float64, len(channels))
	for i, ch := range channels {
		ys[i] = g.InductionY(ch, z, sign)
	}
	return ys, stat.Mean(ys, nil)
}
