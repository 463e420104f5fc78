package sqlite

import (
	"context"
	"fmt"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// RunSink writes pipeline output into one run. It satisfies the pipeline's
// Sink and MatchSink contracts: WriteMatches must follow WriteClusters for
// the same event.
type RunSink struct {
	store *Store
	runID string

	lastEvent int64
	lastIDs   []int64
	records   int
}

// NewRunSink returns a sink bound to runID.
func (s *Store) NewRunSink(runID string) *RunSink {
	return &RunSink{store: s, runID: runID, lastEvent: -1}
}

// RunID returns the run the sink writes to.
func (rs *RunSink) RunID() string {
	return rs.runID
}

// Records returns the number of cluster records written.
func (rs *RunSink) Records() int {
	return rs.records
}

// WriteClusters stores the records of one event.
func (rs *RunSink) WriteClusters(ctx context.Context, event int64, recs []record.ClusterRecord) error {
	ids, err := rs.store.InsertClusters(ctx, rs.runID, event, recs)
	if err != nil {
		return err
	}
	rs.lastEvent, rs.lastIDs = event, ids
	rs.records += len(recs)
	return nil
}

// WriteMatches stores the matches of the event last passed to WriteClusters.
func (rs *RunSink) WriteMatches(ctx context.Context, event int64, matches []record.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}
	if event != rs.lastEvent {
		return fmt.Errorf("matches for event %d follow clusters of event %d", event, rs.lastEvent)
	}
	return rs.store.InsertMatches(ctx, rs.runID, event, matches, rs.lastIDs)
}
