// Package testutil provides shared test utilities and fixtures.
//
// Besides the assertion helpers it builds synthetic events: a point-like
// supernova electron seen on all three planes of one APA, with matching
// Monte-Carlo truth and energy depositions, so pipeline-level tests do not
// need a ROOT file.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Synthetic event layout.
const (
	// SupernovaT0 is the time_start of the first TP, in TPC ticks.
	SupernovaT0 int64 = 6400
	// SupernovaOffset is how far the depositions lag the TPs, in TPC ticks.
	SupernovaOffset int64 = 51200
	// SupernovaY is the true height of the electron, in cm.
	SupernovaY = 300.0
	// CollectionWires is the number of collection TPs in the track.
	CollectionWires = 5
	// InductionHits is the number of TPs on each induction wire.
	InductionHits = 3
	// NoiseChannel is a collection wire on the other drift side, far from
	// the track and without any deposition.
	NoiseChannel uint64 = 1600 + 700

	firstCollection uint64 = 1600 + 200
	conversion      int64  = 32
)

// SupernovaCenterZ returns the z of the middle collection wire of the track.
func SupernovaCenterZ(geom geometry.Geometry) float64 {
	return geom.CollectionZ(firstCollection + CollectionWires/2)
}

// SupernovaEvent returns one event on APA 0: a marley electron crossing
// CollectionWires consecutive collection wires, one U and one V wire hit
// InductionHits times each, a CC neutrino, its truth record, one deposition
// per TP delayed by SupernovaOffset, an initial-state particle and, when
// noise is set, one unmatched collection TP.
func SupernovaEvent(geom geometry.Geometry, ev int64, noise bool) *ingest.EventRecords {
	z := SupernovaCenterZ(geom)
	u := geom.InductionChannel(geometry.ViewU, 0, z, SupernovaY, -1)
	v := geom.InductionChannel(geometry.ViewV, 0, z, SupernovaY, -1)

	rec := &ingest.EventRecords{Event: ev, Present: ingest.StreamAll}
	depTS := (SupernovaT0 + SupernovaOffset) / conversion

	addTP := func(ch uint64, t int64) {
		rec.TPs = append(rec.TPs, ingest.TPRecord{
			Event: ev, Version: 2, Channel: ch, TimeStart: t,
			SamplesOverThreshold: 4, SamplesToPeak: 2, ADCIntegral: 500, ADCPeak: 40,
		})
	}
	for k := uint64(0); k < CollectionWires; k++ {
		ch := firstCollection + k
		addTP(ch, SupernovaT0+int64(k))
		rec.Deposits = append(rec.Deposits, ingest.DepositRecord{Event: ev, Channel: ch, Timestamp: depTS, TrackID: 1})
	}
	for _, ch := range []uint64{u, v} {
		for k := int64(0); k < InductionHits; k++ {
			addTP(ch, SupernovaT0+k)
		}
		rec.Deposits = append(rec.Deposits, ingest.DepositRecord{Event: ev, Channel: ch, Timestamp: depTS, TrackID: 1})
	}
	if noise {
		addTP(NoiseChannel, SupernovaT0+2000)
	}

	x := -geom.DriftDistance(SupernovaT0 + 2)
	rec.Particles = []ingest.ParticleRecord{
		{Event: ev, PDG: 12, TruthID: 1, StatusCode: 0, Energy: 20},
		{Event: ev, PDG: 12, TruthID: 1, StatusCode: 1, X: x, Y: SupernovaY, Z: z, Pz: 15, Energy: 15},
		{Event: ev, PDG: 11, TrackID: 1, TruthID: 1, StatusCode: 1, X: x, Y: SupernovaY, Z: z, Pz: 10, Energy: 10},
	}
	rec.Truths = []ingest.TruthRecord{{Event: ev, TruthID: 1, Generator: "marley", Interaction: "CC"}}
	return rec
}

// SupernovaTPCount is the number of TPs SupernovaEvent produces.
func SupernovaTPCount(noise bool) int {
	n := CollectionWires + 2*InductionHits
	if noise {
		n++
	}
	return n
}
