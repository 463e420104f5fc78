package event

import (
	"strings"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// Generator names with special meaning.
const (
	GeneratorUnknown = "UNKNOWN"
	GeneratorMarley  = "marley"
)

// NeutrinoPDG is the PDG code routed to the neutrino stream at ingest.
const NeutrinoPDG = 12

// Interaction is the neutrino interaction channel.
type Interaction string

const (
	InteractionCC      Interaction = "CC"
	InteractionES      Interaction = "ES"
	InteractionUnknown Interaction = "UNKNOWN"
)

// ParseInteraction maps an interaction label to CC, ES or UNKNOWN.
func ParseInteraction(s string) Interaction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CC":
		return InteractionCC
	case "ES":
		return InteractionES
	default:
		return InteractionUnknown
	}
}

// TriggerPrimitive is a single pulse on one wire.
type TriggerPrimitive struct {
	Event                int64
	Version              int
	DetectorID           uint64
	Channel              uint64
	TimeStart            int64 // TPC ticks
	SamplesOverThreshold int64
	SamplesToPeak        int64
	ADCIntegral          int64
	ADCPeak              int64

	// Truth is the particle the backtracker attributed this pulse to, or nil.
	Truth *TrueParticle
}

// TimeEnd returns the last tick covered by the pulse.
func (tp *TriggerPrimitive) TimeEnd(sampleLength int64) int64 {
	return tp.TimeStart + tp.SamplesOverThreshold*sampleLength
}

// Generator returns the generator name of the linked truth particle, or
// UNKNOWN when the pulse is unmatched or the name is empty.
func (tp *TriggerPrimitive) Generator() string {
	if tp.Truth == nil || tp.Truth.Generator == "" {
		return GeneratorUnknown
	}
	return tp.Truth.Generator
}

// IsSupernova reports whether the linked truth particle comes from a
// supernova neutrino interaction.
func (tp *TriggerPrimitive) IsSupernova() bool {
	return tp.Truth != nil && tp.Truth.IsSupernova()
}

// TrueParticle is a simulated particle, primary or secondary.
type TrueParticle struct {
	Event      int64
	TrackID    int64
	TruthID    int64
	PDG        int64
	Process    string
	Generator  string
	StatusCode int64

	X, Y, Z    float64
	Px, Py, Pz float64
	Energy     float64

	// Derived by Store.Finalize from the energy depositions.
	TimeStart int64 // TPC ticks, inclusive
	TimeEnd   int64 // TPC ticks, inclusive
	Channels  map[uint64]struct{}

	Neutrino *Neutrino
}

// HasWindow reports whether any deposition contributed to the time window.
func (p *TrueParticle) HasWindow() bool {
	return len(p.Channels) > 0
}

// HasChannel reports whether the particle deposited energy on ch.
func (p *TrueParticle) HasChannel(ch uint64) bool {
	_, ok := p.Channels[ch]
	return ok
}

// Position returns the particle's production vertex.
func (p *TrueParticle) Position() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y, Z: p.Z}
}

// Momentum returns the particle's momentum vector.
func (p *TrueParticle) Momentum() geometry.Point {
	return geometry.Point{X: p.Px, Y: p.Py, Z: p.Pz}
}

// IsSupernova reports whether the particle descends from a neutrino or was
// produced by the MARLEY generator.
func (p *TrueParticle) IsSupernova() bool {
	if p.Neutrino != nil {
		return true
	}
	return strings.Contains(strings.ToLower(p.Generator), GeneratorMarley)
}

// Neutrino is a primary neutrino record.
type Neutrino struct {
	Event       int64
	TruthID     int64
	Interaction Interaction

	X, Y, Z    float64
	Px, Py, Pz float64
	Energy     float64
}

// Position returns the interaction vertex.
func (n *Neutrino) Position() geometry.Point {
	return geometry.Point{X: n.X, Y: n.Y, Z: n.Z}
}

// MCTruth is a Monte-Carlo primary record; TruthID keys it to particles.
type MCTruth struct {
	Event     int64
	TruthID   int64
	Generator string
}

// EnergyDeposit is one simulated energy deposition on a wire at one
// timestamp.
type EnergyDeposit struct {
	Event     int64
	Channel   uint64
	Timestamp int64 // TDC ticks
	TrackID   int64
}
