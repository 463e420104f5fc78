package event

import (
	"sort"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/units"
)

// Key identifies a record within a store by event number and ID.
type Key struct {
	Event int64
	ID    int64
}

// Store owns every record of one event.
type Store struct {
	Event int64

	TPs       []*TriggerPrimitive
	Particles []*TrueParticle
	Neutrinos []*Neutrino
	Truths    []MCTruth
	Deposits  []EnergyDeposit

	// TimeOffset is the per-event correction, in TPC ticks, currently
	// subtracted from every particle window.
	TimeOffset int64

	particlesByTruth map[Key]*TrueParticle
	particlesByTrack map[Key]*TrueParticle
	neutrinosByTruth map[Key]*Neutrino

	// MissingTracks counts depositions whose track_id has no particle.
	MissingTracks int
}

// NewStore returns an empty store for one event.
func NewStore(eventID int64) *Store {
	return &Store{Event: eventID}
}

// AddTP adds a trigger primitive and returns the stored copy.
func (s *Store) AddTP(tp TriggerPrimitive) *TriggerPrimitive {
	p := &tp
	s.TPs = append(s.TPs, p)
	return p
}

// AddParticle adds a true particle and returns the stored copy.
func (s *Store) AddParticle(p TrueParticle) *TrueParticle {
	q := &p
	s.Particles = append(s.Particles, q)
	return q
}

// AddNeutrino adds a neutrino and returns the stored copy.
func (s *Store) AddNeutrino(n Neutrino) *Neutrino {
	q := &n
	s.Neutrinos = append(s.Neutrinos, q)
	return q
}

// AddTruth adds a Monte-Carlo primary record.
func (s *Store) AddTruth(t MCTruth) {
	s.Truths = append(s.Truths, t)
}

// AddDeposit adds an energy deposition.
func (s *Store) AddDeposit(d EnergyDeposit) {
	s.Deposits = append(s.Deposits, d)
}

// Finalize builds the lookup tables and runs the post-ingest steps:
// neutrino linking, generator propagation, and particle time/channel
// windows from the depositions. conversion is the TDC→TPC factor.
//
// Windows are built unshifted; any previously applied TimeOffset is
// reapplied afterwards.
func (s *Store) Finalize(conversion int64) {
	s.buildIndex()
	s.linkNeutrinos()
	s.propagateGenerators()
	s.buildTruthWindows(conversion)

	if off := s.TimeOffset; off != 0 {
		s.TimeOffset = 0
		s.ApplyTimeOffset(off)
	}
}

func (s *Store) buildIndex() {
	s.particlesByTruth = make(map[Key]*TrueParticle, len(s.Particles))
	s.particlesByTrack = make(map[Key]*TrueParticle, len(s.Particles))
	s.neutrinosByTruth = make(map[Key]*Neutrino, len(s.Neutrinos))

	for _, p := range s.Particles {
		truthKey := Key{p.Event, p.TruthID}
		if _, ok := s.particlesByTruth[truthKey]; !ok {
			s.particlesByTruth[truthKey] = p
		}
		s.particlesByTrack[Key{p.Event, p.TrackID}] = p
	}
	for _, n := range s.Neutrinos {
		s.neutrinosByTruth[Key{n.Event, n.TruthID}] = n
	}
}

func (s *Store) linkNeutrinos() {
	for _, p := range s.Particles {
		p.Neutrino = s.neutrinosByTruth[Key{p.Event, p.TruthID}]
	}
}

// propagateGenerators copies the primary's generator name onto every
// particle sharing its truth_id that has no name of its own.
func (s *Store) propagateGenerators() {
	if len(s.Truths) == 0 {
		return
	}
	names := make(map[Key]string, len(s.Truths))
	for _, t := range s.Truths {
		if t.Generator != "" {
			names[Key{t.Event, t.TruthID}] = t.Generator
		}
	}
	for _, p := range s.Particles {
		if p.Generator != "" && p.Generator != GeneratorUnknown {
			continue
		}
		if name, ok := names[Key{p.Event, p.TruthID}]; ok {
			p.Generator = name
		}
	}
}

func (s *Store) buildTruthWindows(conversion int64) {
	for _, p := range s.Particles {
		p.TimeStart, p.TimeEnd = 0, 0
		p.Channels = nil
	}
	s.MissingTracks = 0

	for _, d := range s.Deposits {
		p := s.particlesByTrack[Key{d.Event, d.TrackID}]
		if p == nil {
			s.MissingTracks++
			continue
		}
		t := units.TDCToTPC(d.Timestamp, conversion)
		if p.Channels == nil {
			p.Channels = make(map[uint64]struct{})
			p.TimeStart, p.TimeEnd = t, t
		}
		if t < p.TimeStart {
			p.TimeStart = t
		}
		if t > p.TimeEnd {
			p.TimeEnd = t
		}
		p.Channels[d.Channel] = struct{}{}
	}

	if s.MissingTracks > 0 {
		monitoring.Logf("[Store] event %d: %d depositions reference unknown track ids", s.Event, s.MissingTracks)
	}
}

// ParticleByTruthID returns the first particle with the given truth_id.
func (s *Store) ParticleByTruthID(eventID, truthID int64) *TrueParticle {
	return s.particlesByTruth[Key{eventID, truthID}]
}

// NeutrinoByTruthID returns the neutrino with the given truth_id.
func (s *Store) NeutrinoByTruthID(eventID, truthID int64) *Neutrino {
	return s.neutrinosByTruth[Key{eventID, truthID}]
}

// ParticleByTrackID returns the particle with the given Geant4 track_id.
func (s *Store) ParticleByTrackID(eventID, trackID int64) *TrueParticle {
	return s.particlesByTrack[Key{eventID, trackID}]
}

// SortTPs orders the TPs by time_start, keeping the input order for ties.
func (s *Store) SortTPs() {
	sort.SliceStable(s.TPs, func(i, j int) bool {
		return s.TPs[i].TimeStart < s.TPs[j].TimeStart
	})
}

// ApplyTimeOffset shifts every particle window so that offset (in TPC
// ticks) is the total correction applied. Calling it again with the same
// value is a no-op.
func (s *Store) ApplyTimeOffset(offset int64) {
	delta := offset - s.TimeOffset
	if delta == 0 {
		return
	}
	for _, p := range s.Particles {
		if !p.HasWindow() {
			continue
		}
		p.TimeStart -= delta
		p.TimeEnd -= delta
	}
	s.TimeOffset = offset
}

// ClearTruthLinks drops every TP → particle link.
func (s *Store) ClearTruthLinks() {
	for _, tp := range s.TPs {
		tp.Truth = nil
	}
}

// MatchedTPs returns how many TPs carry a truth link.
func (s *Store) MatchedTPs() int {
	n := 0
	for _, tp := range s.TPs {
		if tp.Truth != nil {
			n++
		}
	}
	return n
}
