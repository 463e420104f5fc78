package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

var (
	// ErrInputAbsent reports that a required input stream is missing for an
	// event. The event should be skipped.
	ErrInputAbsent = errors.New("input stream absent")

	// ErrChannelOutOfRange reports a channel beyond the detector. The event
	// cannot be processed.
	ErrChannelOutOfRange = errors.New("channel out of range")
)

// Stream is a bit set of the four per-event input streams.
type Stream uint8

const (
	StreamTPs Stream = 1 << iota
	StreamParticles
	StreamTruth
	StreamDeposits

	StreamAll = StreamTPs | StreamParticles | StreamTruth | StreamDeposits
)

// String lists the streams in s.
func (s Stream) String() string {
	var names []string
	for _, n := range []struct {
		bit  Stream
		name string
	}{
		{StreamTPs, "tps"},
		{StreamParticles, "particles"},
		{StreamTruth, "mctruth"},
		{StreamDeposits, "simides"},
	} {
		if s&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// EventRecords holds every raw record of one event and which streams were
// present in the input.
type EventRecords struct {
	Event     int64
	Present   Stream
	TPs       []TPRecord
	Particles []ParticleRecord
	Truths    []TruthRecord
	Deposits  []DepositRecord
}

// BuilderStats counts what Build dropped or rerouted.
type BuilderStats struct {
	TPsIn          int
	TPsFiltered    int
	Promoted       int
	InitialState   int
	Neutrinos      int
	ParticlesAdded int
}

// Builder turns EventRecords into event stores.
type Builder struct {
	geom       geometry.Geometry
	conversion int64
	totCut     int64
	required   Stream
}

// NewBuilder returns a builder that requires every stream.
func NewBuilder(geom geometry.Geometry, cfg *config.TuningConfig) *Builder {
	return &Builder{
		geom:       geom,
		conversion: cfg.GetConversionTDCToTPC(),
		totCut:     cfg.GetTOTCut(),
		required:   StreamAll,
	}
}

// SetRequired changes which streams must be present. Runs over data without
// truth can require only StreamTPs.
func (b *Builder) SetRequired(s Stream) {
	b.required = s
}

// Build converts, promotes and filters the TPs, routes particles and
// neutrinos, and finalises the store.
func (b *Builder) Build(rec *EventRecords) (*event.Store, BuilderStats, error) {
	var stats BuilderStats
	if missing := b.required &^ rec.Present; missing != 0 {
		return nil, stats, fmt.Errorf("event %d: missing %s: %w", rec.Event, missing, ErrInputAbsent)
	}

	s := event.NewStore(rec.Event)
	maxCh := b.geom.MaxChannel()

	tps := make([]event.TriggerPrimitive, 0, len(rec.TPs))
	for _, r := range rec.TPs {
		tp := ConvertTP(r, b.conversion)
		promoted := PromoteChannel(tp.Channel, tp.DetectorID, b.geom.ChannelsPerAPA)
		if promoted != tp.Channel {
			stats.Promoted++
			tp.Channel = promoted
		}
		if tp.Channel >= maxCh {
			return nil, stats, fmt.Errorf("event %d: channel %d >= %d: %w", rec.Event, tp.Channel, maxCh, ErrChannelOutOfRange)
		}
		tps = append(tps, tp)
	}
	stats.TPsIn = len(tps)
	tps = FilterTOT(tps, b.totCut)
	stats.TPsFiltered = stats.TPsIn - len(tps)
	for _, tp := range tps {
		s.AddTP(tp)
	}

	interactions := make(map[int64]event.Interaction, len(rec.Truths))
	for _, t := range rec.Truths {
		s.AddTruth(event.MCTruth{Event: t.Event, TruthID: t.TruthID, Generator: t.Generator})
		if t.Interaction != "" {
			interactions[t.TruthID] = event.ParseInteraction(t.Interaction)
		}
	}

	for _, p := range rec.Particles {
		if p.StatusCode == 0 {
			stats.InitialState++
			continue
		}
		if p.PDG == event.NeutrinoPDG {
			inter, ok := interactions[p.TruthID]
			if !ok {
				inter = event.InteractionUnknown
			}
			s.AddNeutrino(event.Neutrino{
				Event: p.Event, TruthID: p.TruthID, Interaction: inter,
				X: p.X, Y: p.Y, Z: p.Z,
				Px: p.Px, Py: p.Py, Pz: p.Pz,
				Energy: p.Energy,
			})
			stats.Neutrinos++
			continue
		}
		s.AddParticle(event.TrueParticle{
			Event: p.Event, TrackID: p.TrackID, TruthID: p.TruthID,
			PDG: p.PDG, Process: p.Process, Generator: p.Generator, StatusCode: p.StatusCode,
			X: p.X, Y: p.Y, Z: p.Z,
			Px: p.Px, Py: p.Py, Pz: p.Pz,
			Energy: p.Energy,
		})
		stats.ParticlesAdded++
	}

	for _, d := range rec.Deposits {
		s.AddDeposit(event.EnergyDeposit{Event: d.Event, Channel: d.Channel, Timestamp: d.Timestamp, TrackID: d.TrackID})
	}

	s.Finalize(b.conversion)
	s.SortTPs()

	if stats.TPsFiltered > 0 {
		monitoring.Logf("[Ingest] event %d: dropped %d/%d TPs below tot cut %d", rec.Event, stats.TPsFiltered, stats.TPsIn, b.totCut)
	}
	return s, stats, nil
}
