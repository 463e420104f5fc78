package ingest

import (
	"context"
	"io"
	"sort"
)

// Source yields one event's records at a time. Next returns io.EOF when the
// input is exhausted.
type Source interface {
	Next(ctx context.Context) (*EventRecords, error)
	Close() error
}

// SliceSource serves events from memory.
type SliceSource struct {
	events []*EventRecords
	pos    int
}

// NewSliceSource returns a Source over events in order.
func NewSliceSource(events ...*EventRecords) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (*EventRecords, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Close is a no-op.
func (s *SliceSource) Close() error { return nil }

// Group splits flat record streams into per-event EventRecords, ordered by
// event number. present marks which streams were read at all; an event that
// has no rows in a present stream still counts that stream as present.
func Group(present Stream, tps []TPRecord, particles []ParticleRecord, truths []TruthRecord, deposits []DepositRecord) []*EventRecords {
	byEvent := make(map[int64]*EventRecords)
	get := func(ev int64) *EventRecords {
		r, ok := byEvent[ev]
		if !ok {
			r = &EventRecords{Event: ev, Present: present}
			byEvent[ev] = r
		}
		return r
	}
	for _, r := range tps {
		e := get(r.Event)
		e.TPs = append(e.TPs, r)
	}
	for _, r := range particles {
		e := get(r.Event)
		e.Particles = append(e.Particles, r)
	}
	for _, r := range truths {
		e := get(r.Event)
		e.Truths = append(e.Truths, r)
	}
	for _, r := range deposits {
		e := get(r.Event)
		e.Deposits = append(e.Deposits, r)
	}

	out := make([]*EventRecords, 0, len(byEvent))
	for _, r := range byEvent {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}
