package backtrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

func init() {
	monitoring.SetLogger(nil)
}

func newBacktracker() *Backtracker {
	return New(geometry.Default(), ParamsFromConfig(config.EmptyTuningConfig()))
}

// offsetStore builds ten wires, each carrying one TP at 10000 + 100 i and one
// deposition whose TPC time sits about 50000 ticks later.
func offsetStore() *event.Store {
	s := event.NewStore(1)
	for i := int64(0); i < 10; i++ {
		ch := uint64(1600 + 60*i)
		s.AddParticle(event.TrueParticle{Event: 1, TrackID: i + 1, TruthID: i + 1})
		s.AddTP(event.TriggerPrimitive{Event: 1, Channel: ch, TimeStart: 10000 + 100*i, SamplesOverThreshold: 4})
		s.AddDeposit(event.EnergyDeposit{Event: 1, Channel: ch, Timestamp: (60000 + 100*i) / 32, TrackID: i + 1})
	}
	s.Finalize(32)
	return s
}

func TestRun_DetectsOffsetAndMatchesEveryTP(t *testing.T) {
	s := offsetStore()
	b := newBacktracker()

	res := b.Run(s)

	assert.InDelta(t, 50000, res.Offset, 32)
	assert.Equal(t, res.Offset, s.TimeOffset)
	assert.Len(t, res.OffsetSamples, 10)
	assert.Equal(t, 0, res.WindowMatches, "uncorrected windows are 50000 ticks away")
	assert.Equal(t, 10, res.DepositMatches)
	assert.Equal(t, 0, res.Unmatched)

	for i, tp := range s.TPs {
		require.NotNil(t, tp.Truth, "tp %d", i)
		assert.Equal(t, int64(i+1), tp.Truth.TrackID)
	}

	// Particle windows now line up with the TPs.
	p := s.ParticleByTrackID(1, 1)
	assert.InDelta(t, 10000, p.TimeStart, 32)
}

func TestMatchDepositions_Idempotent(t *testing.T) {
	s := offsetStore()
	b := newBacktracker()
	offset, _ := b.EstimateOffset(s)

	b.MatchDepositions(s, offset)
	first := make([]*event.TrueParticle, len(s.TPs))
	for i, tp := range s.TPs {
		first[i] = tp.Truth
	}

	b.MatchDepositions(s, offset)
	for i, tp := range s.TPs {
		assert.Same(t, first[i], tp.Truth, "tp %d", i)
	}
}

func TestEstimateOffset_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		deltas []int64
	}{
		{"too few samples", []int64{50000, 50000}},
		{"median below range", []int64{500, 600, 700}},
		{"median above range", []int64{300000, 300000, 300000}},
		{"only negative deltas", []int64{-5000, -5000, -5000, -5000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := event.NewStore(0)
			for i, d := range tt.deltas {
				ch := uint64(1600 + i)
				s.AddTP(event.TriggerPrimitive{Channel: ch, TimeStart: 400000})
				s.AddDeposit(event.EnergyDeposit{Channel: ch, Timestamp: (400000 + d) / 32})
			}
			offset, _ := newBacktracker().EstimateOffset(s)
			assert.Equal(t, int64(0), offset)
		})
	}
}

func TestEstimateOffset_UsesEarliestOnEachWire(t *testing.T) {
	s := event.NewStore(0)
	for i := 0; i < 3; i++ {
		ch := uint64(1700 + i)
		s.AddTP(event.TriggerPrimitive{Channel: ch, TimeStart: 2000})
		s.AddTP(event.TriggerPrimitive{Channel: ch, TimeStart: 1000})
		s.AddDeposit(event.EnergyDeposit{Channel: ch, Timestamp: 500})
		s.AddDeposit(event.EnergyDeposit{Channel: ch, Timestamp: 200})
	}
	// A wire with only a deposition contributes nothing.
	s.AddDeposit(event.EnergyDeposit{Channel: 5, Timestamp: 9999})

	offset, samples := newBacktracker().EstimateOffset(s)
	assert.Equal(t, []float64{5400, 5400, 5400}, samples)
	assert.Equal(t, int64(5400), offset)
}

func TestAlignedTime_WidensBeforeMultiply(t *testing.T) {
	assert.Equal(t, int64(131072), AlignedTime(4096, 32, 0))
	assert.Equal(t, int64(131072-1000), AlignedTime(4096, 32, 1000))

	s := event.NewStore(0)
	s.AddParticle(event.TrueParticle{TrackID: 1})
	tp := s.AddTP(event.TriggerPrimitive{Channel: 1650, TimeStart: 131072})
	s.AddDeposit(event.EnergyDeposit{Channel: 1650, Timestamp: 4096, TrackID: 1})
	s.Finalize(32)

	b := New(geometry.Default(), Params{Conversion: 32, TimeTolerance: 10, ChannelTolerance: 0, ChannelWeight: 20})
	require.Equal(t, 1, b.MatchDepositions(s, 0))
	assert.Equal(t, int64(1), tp.Truth.TrackID)
}

func TestMatchDepositions_PlanePreferenceAndScore(t *testing.T) {
	build := func(withSamePlane bool) (*event.Store, *event.TriggerPrimitive) {
		s := event.NewStore(0)
		s.AddParticle(event.TrueParticle{TrackID: 1}) // V plane, perfect time
		s.AddParticle(event.TrueParticle{TrackID: 2}) // X plane, worse score
		tp := s.AddTP(event.TriggerPrimitive{Channel: 1600, TimeStart: 3200})
		s.AddDeposit(event.EnergyDeposit{Channel: 1599, Timestamp: 100, TrackID: 1})
		if withSamePlane {
			s.AddDeposit(event.EnergyDeposit{Channel: 1620, Timestamp: 103, TrackID: 2})
		}
		s.Finalize(32)
		return s, tp
	}

	b := newBacktracker()

	s, tp := build(true)
	b.MatchDepositions(s, 0)
	require.NotNil(t, tp.Truth)
	assert.Equal(t, int64(2), tp.Truth.TrackID)

	s, tp = build(false)
	b.MatchDepositions(s, 0)
	require.NotNil(t, tp.Truth)
	assert.Equal(t, int64(1), tp.Truth.TrackID)
}

func TestMatchDepositions_ChannelWeight(t *testing.T) {
	s := event.NewStore(0)
	s.AddParticle(event.TrueParticle{TrackID: 1})
	s.AddParticle(event.TrueParticle{TrackID: 2})
	tp := s.AddTP(event.TriggerPrimitive{Channel: 1700, TimeStart: 32000})
	// Same wire, 64 ticks late: score 64.
	s.AddDeposit(event.EnergyDeposit{Channel: 1700, Timestamp: 1002, TrackID: 1})
	// Neighbouring wire, exact time: score 20 with the default weight, 1 with weight 1.
	s.AddDeposit(event.EnergyDeposit{Channel: 1701, Timestamp: 1000, TrackID: 2})
	s.Finalize(32)

	b := newBacktracker()
	b.MatchDepositions(s, 0)
	assert.Equal(t, int64(2), tp.Truth.TrackID)

	heavy := New(geometry.Default(), Params{Conversion: 32, TimeTolerance: 5000, ChannelTolerance: 50, ChannelWeight: 100})
	heavy.MatchDepositions(s, 0)
	assert.Equal(t, int64(1), tp.Truth.TrackID)
}

func TestMatchDepositions_UnknownTrackLeavesTPUnmatched(t *testing.T) {
	s := event.NewStore(0)
	tp := s.AddTP(event.TriggerPrimitive{Channel: 10, TimeStart: 320})
	s.AddDeposit(event.EnergyDeposit{Channel: 10, Timestamp: 10, TrackID: 42})
	s.Finalize(32)

	assert.Equal(t, 0, newBacktracker().MatchDepositions(s, 0))
	assert.Nil(t, tp.Truth)
	assert.Equal(t, event.GeneratorUnknown, tp.Generator())
}

func TestMatchDepositions_LowChannelDoesNotUnderflow(t *testing.T) {
	s := event.NewStore(0)
	s.AddParticle(event.TrueParticle{TrackID: 1})
	tp := s.AddTP(event.TriggerPrimitive{Channel: 3, TimeStart: 64})
	s.AddDeposit(event.EnergyDeposit{Channel: 0, Timestamp: 2, TrackID: 1})
	s.Finalize(32)

	newBacktracker().MatchDepositions(s, 0)
	require.NotNil(t, tp.Truth)
}

func TestMatchWindows(t *testing.T) {
	s := event.NewStore(0)
	s.AddParticle(event.TrueParticle{TrackID: 1})
	s.AddParticle(event.TrueParticle{TrackID: 2})
	s.AddDeposit(event.EnergyDeposit{Channel: 1700, Timestamp: 100, TrackID: 1})
	s.AddDeposit(event.EnergyDeposit{Channel: 1700, Timestamp: 100, TrackID: 2})
	s.AddDeposit(event.EnergyDeposit{Channel: 1800, Timestamp: 100, TrackID: 2})
	s.Finalize(32)

	// W = (1 + 10) × 32 = 352 around [3200, 3200].
	inside := s.AddTP(event.TriggerPrimitive{Channel: 1700, TimeStart: 3200 + 352})
	late := s.AddTP(event.TriggerPrimitive{Channel: 1700, TimeStart: 3200 + 353})
	other := s.AddTP(event.TriggerPrimitive{Channel: 1800, TimeStart: 3000})
	offWire := s.AddTP(event.TriggerPrimitive{Channel: 1750, TimeStart: 3200})

	n := newBacktracker().MatchWindows(s)
	assert.Equal(t, 2, n)
	require.NotNil(t, inside.Truth)
	assert.Equal(t, int64(1), inside.Truth.TrackID, "first candidate wins")
	assert.Nil(t, late.Truth)
	require.NotNil(t, other.Truth)
	assert.Equal(t, int64(2), other.Truth.TrackID)
	assert.Nil(t, offWire.Truth)
}
