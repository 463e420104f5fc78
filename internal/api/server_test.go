package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
)

func init() {
	monitoring.SetLogger(nil)
}

// seededStore returns a store with one run: three X clusters and one joined
// cluster in event 1, one U cluster in event 2, and one match.
func seededStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	run, err := s.CreateRun(ctx, "in.root", nil)
	require.NoError(t, err)

	rec := func(view, label string, z float64) record.ClusterRecord {
		return record.ClusterRecord{
			Event: 1, View: view, NTPs: 1, TrueLabel: label, RecoPosZ: z,
			MinDistanceFromTruePos: -1, TotalCharge: 100,
			TPDetectorChannel:      []uint64{1600},
			TPDetector:             []uint64{0},
			TPSamplesOverThreshold: []int64{3},
			TPTimeStart:            []int64{1000},
			TPSamplesToPeak:        []int64{1},
			TPADCPeak:              []int64{10},
			TPADCIntegral:          []int64{100},
		}
	}
	ids, err := s.InsertClusters(ctx, run.RunID, 1, []record.ClusterRecord{
		rec("X", "marley", 10), rec("X", "marley", 20), rec("X", "UNKNOWN", 30), rec(record.ViewThree, "marley", 10),
	})
	require.NoError(t, err)

	u := rec("U", "marley", 0)
	u.Event = 2
	_, err = s.InsertClusters(ctx, run.RunID, 2, []record.ClusterRecord{u})
	require.NoError(t, err)

	require.NoError(t, s.InsertMatches(ctx, run.RunID, 1, []record.MatchRecord{
		{Event: 1, U: 0, V: 1, X: 2, Joined: 3},
	}, ids))
	return s, run.RunID
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Runs
// =============================================================================

func TestListRuns(t *testing.T) {
	store, runID := seededStore(t)
	mux := NewServer(store).ServeMux()

	w := get(t, mux, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var runs []sqlite.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
}

func TestListRuns_Empty(t *testing.T) {
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer s.Close()

	w := get(t, NewServer(s).ServeMux(), "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestShowRun(t *testing.T) {
	store, runID := seededStore(t)
	mux := NewServer(store).ServeMux()

	w := get(t, mux, "/api/runs/"+runID)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		RunID    string         `json:"run_id"`
		Clusters map[string]int `json:"clusters"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, map[string]int{"X": 3, "3D": 1, "U": 1}, got.Clusters)

	w = get(t, mux, "/api/runs/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"run nope not found"}`, w.Body.String())
}

// =============================================================================
// Clusters and matches
// =============================================================================

func decodePage(t *testing.T, w *httptest.ResponseRecorder) ClusterPage {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page ClusterPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	return page
}

func TestListClusters(t *testing.T) {
	store, runID := seededStore(t)
	mux := NewServer(store).ServeMux()

	page := decodePage(t, get(t, mux, "/api/clusters?run_id="+runID))
	assert.Len(t, page.Clusters, 5)
	assert.Zero(t, page.NextAfterID)

	page = decodePage(t, get(t, mux, "/api/clusters?view=x&label=marley"))
	require.Len(t, page.Clusters, 2)
	assert.Equal(t, "X", page.Clusters[0].View)
	assert.Equal(t, []int64{1000}, page.Clusters[0].TPTimeStart)

	page = decodePage(t, get(t, mux, "/api/clusters?event=2"))
	require.Len(t, page.Clusters, 1)
	assert.Equal(t, "U", page.Clusters[0].View)

	page = decodePage(t, get(t, mux, "/api/clusters?run_id=other"))
	assert.NotNil(t, page.Clusters)
	assert.Empty(t, page.Clusters)
}

func TestListClusters_Paging(t *testing.T) {
	store, _ := seededStore(t)
	mux := NewServer(store).ServeMux()

	var ids []int64
	after := int64(0)
	for i := 0; i < 10; i++ {
		page := decodePage(t, get(t, mux, "/api/clusters?limit=2&after_id="+strconv.FormatInt(after, 10)))
		for _, c := range page.Clusters {
			ids = append(ids, c.ClusterID)
		}
		if page.NextAfterID == 0 {
			break
		}
		after = page.NextAfterID
	}
	require.Len(t, ids, 5)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestListClusters_BadQuery(t *testing.T) {
	store, _ := seededStore(t)
	mux := NewServer(store).ServeMux()

	for _, q := range []string{"event=one", "limit=-3", "after_id=1.5"} {
		w := get(t, mux, "/api/clusters?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestListMatches(t *testing.T) {
	store, runID := seededStore(t)
	mux := NewServer(store).ServeMux()

	w := get(t, mux, "/api/matches?run_id="+runID)
	require.Equal(t, http.StatusOK, w.Code)
	var matches []sqlite.StoredMatch
	require.NoError(t, json.NewDecoder(w.Body).Decode(&matches))
	require.Len(t, matches, 1)
	assert.NotZero(t, matches[0].JoinedClusterID)

	w = get(t, mux, "/api/matches?run_id="+runID+"&event=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/matches").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/matches?run_id=x&event=a").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	store, _ := seededStore(t)
	mux := NewServer(store).ServeMux()

	for _, path := range []string{"/api/runs", "/api/runs/x", "/api/clusters", "/api/matches", "/clusters/map"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

type failingStore struct{}

var errLocked = errors.New("database is locked")

func (failingStore) ListRuns(context.Context) ([]*sqlite.Run, error) { return nil, errLocked }
func (failingStore) GetRun(context.Context, string) (*sqlite.Run, error) {
	return nil, errLocked
}
func (failingStore) ListClusters(context.Context, sqlite.ClusterFilter) ([]*sqlite.StoredCluster, error) {
	return nil, errLocked
}
func (failingStore) ListMatches(context.Context, string, *int64) ([]*sqlite.StoredMatch, error) {
	return nil, errLocked
}
func (failingStore) CountClusters(context.Context, string) (map[string]int, error) {
	return nil, errLocked
}

func TestStoreErrors(t *testing.T) {
	mux := NewServer(failingStore{}).ServeMux()
	for _, path := range []string{"/api/runs", "/api/runs/x", "/api/clusters", "/api/matches?run_id=x", "/clusters/map?run_id=x"} {
		w := get(t, mux, path)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Contains(t, w.Body.String(), "database is locked", path)
	}
}

// =============================================================================
// Cluster map
// =============================================================================

func TestClusterMap(t *testing.T) {
	store, runID := seededStore(t)
	mux := NewServer(store).ServeMux()

	w := get(t, mux, "/clusters/map?run_id="+runID+"&event=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Run "+runID+", event 1")
	assert.Contains(t, body, "marley")
	assert.Contains(t, body, "UNKNOWN")

	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/clusters/map").Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := get(t, h, "/api/runs?x=1")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, buf.String(), "/api/runs?x=1")
	assert.Contains(t, buf.String(), "418")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
