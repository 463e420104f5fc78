package testutil

import (
	"errors"
	"net/http"
	"testing"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
)

func TestAssertStatusCode(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	if fakeT.Failed() {
		t.Error("expected no failure for matching status codes")
	}
}

func TestAssertNoError_NilErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

func TestAssertError_WithErr(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("something wrong"))
	if fakeT.Failed() {
		t.Error("expected no failure when error is present")
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/api/test")
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.URL.Path != "/api/test" {
		t.Errorf("path = %s, want /api/test", req.URL.Path)
	}
	if rec := NewTestRecorder(); rec.Code != http.StatusOK {
		t.Errorf("recorder code = %d, want 200", rec.Code)
	}
}

func TestSupernovaEvent(t *testing.T) {
	g := geometry.Default()
	rec := SupernovaEvent(g, 7, true)

	if rec.Present != ingest.StreamAll {
		t.Errorf("present = %s, want all streams", rec.Present)
	}
	if got, want := len(rec.TPs), SupernovaTPCount(true); got != want {
		t.Fatalf("TPs = %d, want %d", got, want)
	}

	views := map[geometry.View]int{}
	for _, tp := range rec.TPs {
		if tp.Event != 7 {
			t.Errorf("TP event = %d, want 7", tp.Event)
		}
		if g.APAOf(tp.Channel) != 0 {
			t.Errorf("channel %d is not on APA 0", tp.Channel)
		}
		views[g.ViewOf(tp.Channel)]++
	}
	if views[geometry.ViewU] != InductionHits || views[geometry.ViewV] != InductionHits {
		t.Errorf("induction hits = %v", views)
	}
	if views[geometry.ViewX] != CollectionWires+1 {
		t.Errorf("collection hits = %d", views[geometry.ViewX])
	}

	// Depositions land SupernovaOffset ticks after the TPs.
	for _, d := range rec.Deposits {
		if got := d.Timestamp*conversion - SupernovaT0; got != SupernovaOffset {
			t.Errorf("deposit lag = %d, want %d", got, SupernovaOffset)
		}
	}

	if n := len(SupernovaEvent(g, 1, false).TPs); n != SupernovaTPCount(false) {
		t.Errorf("TPs without noise = %d", n)
	}
}
