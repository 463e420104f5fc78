package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// Sink receives the cluster records of each processed event.
type Sink interface {
	WriteClusters(ctx context.Context, event int64, recs []record.ClusterRecord) error
}

// MatchSink is implemented by sinks that also store three-view matches.
// WriteMatches is called after WriteClusters for the same event.
type MatchSink interface {
	WriteMatches(ctx context.Context, event int64, matches []record.MatchRecord) error
}

// Summary counts what a Runner did.
type Summary struct {
	Events         int
	Skipped        int
	SkipReasons    map[string]int
	TPs            int
	MatchedTPs     int
	Clusters       [3]int // per geometry.View
	Matches        int
	Volumes        int
	Records        int
	OffsetsApplied int
	FieldWarnings  int
	FilteredTPs    int
	Promoted       int
}

// Runner drives a batch: read, build, process, write.
type Runner struct {
	Source   ingest.Source
	Builder  *ingest.Builder
	Pipeline *Pipeline
	Sink     Sink

	// Observe, when set, is called with every processed event before its
	// records are written.
	Observe func(*EventResult)
}

// skipReason classifies per-event errors that skip the event instead of
// aborting the batch.
func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ingest.ErrInputAbsent):
		return "input_absent", true
	case errors.Is(err, ingest.ErrChannelOutOfRange):
		return "channel_out_of_range", true
	}
	return "", false
}

// Run processes every event of the source. Events with a missing stream or
// an out-of-range channel are logged and skipped; any other error stops the
// run and is returned with the summary so far.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{SkipReasons: make(map[string]int)}
	geom := r.Pipeline.Config().Geometry
	adc := r.Pipeline.Config().ADCPerMeV

	for {
		rec, err := r.Source.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read: %w", err)
		}

		store, stats, err := r.Builder.Build(rec)
		if err != nil {
			if reason, ok := skipReason(err); ok {
				monitoring.Logf("[Runner] skipping event %d: %v", rec.Event, err)
				sum.Skipped++
				sum.SkipReasons[reason]++
				continue
			}
			return sum, fmt.Errorf("build event %d: %w", rec.Event, err)
		}
		sum.FilteredTPs += stats.TPsFiltered
		sum.Promoted += stats.Promoted

		res, err := r.Pipeline.ProcessEvent(ctx, store)
		if err != nil {
			return sum, fmt.Errorf("process event %d: %w", rec.Event, err)
		}
		if r.Observe != nil {
			r.Observe(res)
		}

		recs, matches := res.Records(geom, adc)
		if r.Sink != nil {
			if err := r.Sink.WriteClusters(ctx, rec.Event, recs); err != nil {
				return sum, fmt.Errorf("write event %d: %w", rec.Event, err)
			}
			if ms, ok := r.Sink.(MatchSink); ok {
				if err := ms.WriteMatches(ctx, rec.Event, matches); err != nil {
					return sum, fmt.Errorf("write matches of event %d: %w", rec.Event, err)
				}
			}
		}

		sum.Events++
		sum.TPs += len(store.TPs)
		sum.MatchedTPs += res.Backtrack.DepositMatches
		for _, v := range geometry.Views {
			sum.Clusters[v] += len(res.Clusters[v])
		}
		sum.Matches += len(res.Triples)
		sum.Volumes += len(res.Volumes)
		sum.Records += len(recs)
		if res.Backtrack.Offset != 0 {
			sum.OffsetsApplied++
		}
	}

	if w, ok := r.Source.(interface{ Warnings() int }); ok {
		sum.FieldWarnings = w.Warnings()
	}
	monitoring.Logf("[Runner] %d events processed, %d skipped, %d records (U %d, V %d, X %d, %d matches)",
		sum.Events, sum.Skipped, sum.Records, sum.Clusters[geometry.ViewU], sum.Clusters[geometry.ViewV],
		sum.Clusters[geometry.ViewX], sum.Matches)
	return sum, nil
}
