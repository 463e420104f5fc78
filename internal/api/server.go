// Package api serves the results database over HTTP: runs, clusters and
// matches as JSON, and a cluster map page per run.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/httputil"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/diagnostics"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Page sizes for /api/clusters.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// ResultsStore is the read side of the results database.
type ResultsStore interface {
	ListRuns(ctx context.Context) ([]*sqlite.Run, error)
	GetRun(ctx context.Context, runID string) (*sqlite.Run, error)
	ListClusters(ctx context.Context, f sqlite.ClusterFilter) ([]*sqlite.StoredCluster, error)
	ListMatches(ctx context.Context, runID string, event *int64) ([]*sqlite.StoredMatch, error)
	CountClusters(ctx context.Context, runID string) (map[string]int, error)
}

var _ ResultsStore = (*sqlite.Store)(nil)

type Server struct {
	store ResultsStore
}

func NewServer(store ResultsStore) *Server {
	return &Server{store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	mux.HandleFunc("/api/clusters", s.listClusters)
	mux.HandleFunc("/api/matches", s.listMatches)
	mux.HandleFunc("/clusters/map", s.clusterMap)
	return mux
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		httputil.StoreError(w, "runs", err)
		return
	}
	if runs == nil {
		runs = []*sqlite.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// RunDetail is a run with its per-view cluster counts.
type RunDetail struct {
	*sqlite.Run
	Clusters map[string]int `json:"clusters"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		httputil.StoreError(w, "run "+id, err)
		return
	}
	counts, err := s.store.CountClusters(r.Context(), id)
	if err != nil {
		httputil.StoreError(w, "cluster counts", err)
		return
	}
	httputil.WriteJSONOK(w, RunDetail{Run: run, Clusters: counts})
}

// ClusterPage is one page of /api/clusters. NextAfterID is set when the
// page is full.
type ClusterPage struct {
	Clusters    []*sqlite.StoredCluster `json:"clusters"`
	NextAfterID int64                   `json:"next_after_id,omitempty"`
}

func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, err := FilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	clusters, err := s.store.ListClusters(r.Context(), f)
	if err != nil {
		httputil.StoreError(w, "clusters", err)
		return
	}
	page := ClusterPage{Clusters: clusters}
	if page.Clusters == nil {
		page.Clusters = []*sqlite.StoredCluster{}
	}
	if len(clusters) == f.Limit {
		page.NextAfterID = clusters[len(clusters)-1].ClusterID
	}
	httputil.WriteJSONOK(w, page)
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	runID := q.Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}
	event, err := optionalInt(q, "event")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	matches, err := s.store.ListMatches(r.Context(), runID, event)
	if err != nil {
		httputil.StoreError(w, "matches", err)
		return
	}
	if matches == nil {
		matches = []*sqlite.StoredMatch{}
	}
	httputil.WriteJSONOK(w, matches)
}

// clusterMap renders the collection and joined clusters of a run as an
// interactive scatter chart.
func (s *Server) clusterMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, err := FilterFromQuery(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if f.RunID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}
	f.Limit = 0

	var recs []record.ClusterRecord
	for _, view := range []string{"X", record.ViewThree} {
		if f.View != "" && f.View != view {
			continue
		}
		vf := f
		vf.View = view
		clusters, err := s.store.ListClusters(r.Context(), vf)
		if err != nil {
			httputil.StoreError(w, "clusters", err)
			return
		}
		for _, c := range clusters {
			recs = append(recs, c.ClusterRecord)
		}
	}

	title := "Run " + f.RunID
	if f.Event != nil {
		title += fmt.Sprintf(", event %d", *f.Event)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := diagnostics.RenderClusterMap(w, title, diagnostics.PointsFromRecords(recs)); err != nil {
		log.Printf("cluster map for run %s: %v", f.RunID, err)
	}
}

// FilterFromQuery reads run_id, event, view, label, limit and after_id.
func FilterFromQuery(q url.Values) (sqlite.ClusterFilter, error) {
	f := sqlite.ClusterFilter{
		RunID: q.Get("run_id"),
		View:  strings.ToUpper(q.Get("view")),
		Label: q.Get("label"),
	}
	var err error
	if f.Event, err = optionalInt(q, "event"); err != nil {
		return f, err
	}
	limit, err := optionalInt(q, "limit")
	if err != nil {
		return f, err
	}
	if limit != nil {
		f.Limit = int(*limit)
	}
	after, err := optionalInt(q, "after_id")
	if err != nil {
		return f, err
	}
	if after != nil {
		f.AfterID = *after
	}
	return f, nil
}

func optionalInt(q url.Values, name string) (*int64, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer, got %q", name, s)
	}
	return &n, nil
}
