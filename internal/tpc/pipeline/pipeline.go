package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/backtrack"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/cluster"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/match"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/volume"
)

// Config holds the dependencies and thresholds of one Pipeline.
type Config struct {
	Geometry  geometry.Geometry
	Backtrack backtrack.Params
	Cluster   cluster.Params

	MatchRadius float64 // cm
	MatchWindow int64   // TPC ticks around each collection cluster

	// VolumeRadius, when > 0, gathers every collection TP within this many
	// cm of each collection cluster into an extra volume cluster.
	VolumeRadius float64

	// ADCPerMeV converts total charge to total energy in records.
	ADCPerMeV float64

	// SkipBacktrack disables truth matching, e.g. for data without
	// Monte-Carlo streams.
	SkipBacktrack bool
}

// ConfigFromTuning builds a Config from the tuning file.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Geometry:     geometry.New(cfg),
		Backtrack:    backtrack.ParamsFromConfig(cfg),
		Cluster:      cluster.ParamsFromConfig(cfg),
		MatchRadius:  cfg.GetMatchRadiusCM(),
		MatchWindow:  cfg.GetMatchTimeWindowTicks(),
		VolumeRadius: cfg.GetVolumeRadiusCM(),
		ADCPerMeV:    cfg.GetADCToMeV(),
	}
}

// EventResult is everything the pipeline produced for one event.
type EventResult struct {
	Event     int64
	Backtrack backtrack.Result

	// Clusters holds the per-plane clusters, indexed by geometry.View, each
	// in the order the clusterer emitted them.
	Clusters [3][]*cluster.Cluster
	Triples  []match.Triple
	Volumes  []*cluster.Cluster
}

// PlaneClusters returns the U, V and X clusters concatenated.
func (r *EventResult) PlaneClusters() []*cluster.Cluster {
	n := len(r.Clusters[0]) + len(r.Clusters[1]) + len(r.Clusters[2])
	out := make([]*cluster.Cluster, 0, n)
	for _, v := range geometry.Views {
		out = append(out, r.Clusters[v]...)
	}
	return out
}

// Records flattens the result. Plane clusters come first (U, V, X), then one
// joined record per triple, then volume clusters. Match records index into
// the returned cluster records.
func (r *EventResult) Records(geom geometry.Geometry, adcPerMeV float64) ([]record.ClusterRecord, []record.MatchRecord) {
	planes := r.PlaneClusters()
	recs := make([]record.ClusterRecord, 0, len(planes)+len(r.Triples)+len(r.Volumes))
	index := make(map[*cluster.Cluster]int, len(planes))
	for _, c := range planes {
		index[c] = len(recs)
		recs = append(recs, record.New(geom, c, adcPerMeV, record.KindPlane))
	}

	matches := make([]record.MatchRecord, 0, len(r.Triples))
	for _, t := range r.Triples {
		joined := len(recs)
		recs = append(recs, record.New(geom, t.Joined, adcPerMeV, record.KindThreeView))
		matches = append(matches, record.MatchRecord{
			Event:  r.Event,
			APA:    t.X.APA,
			U:      index[t.U],
			V:      index[t.V],
			X:      index[t.X],
			Joined: joined,
			YU:     t.YU,
			YV:     t.YV,
		})
	}

	for _, c := range r.Volumes {
		recs = append(recs, record.New(geom, c, adcPerMeV, record.KindVolume))
	}
	return recs, matches
}

// Pipeline runs the per-event stages. A Pipeline holds no per-event state
// and may process events from several goroutines.
type Pipeline struct {
	cfg        Config
	backtrack  *backtrack.Backtracker
	newCluster func() cluster.ClustererInterface
	aggregator *cluster.Aggregator
	matcher    *match.Matcher
	gatherer   *volume.Gatherer
}

// New wires the stages from cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		backtrack:  backtrack.New(cfg.Geometry, cfg.Backtrack),
		aggregator: cluster.NewAggregator(cfg.Geometry),
		matcher:    match.NewMatcher(cfg.Geometry, cfg.MatchRadius, cfg.MatchWindow),
	}
	p.newCluster = func() cluster.ClustererInterface {
		return cluster.NewClusterer(cfg.Geometry, cfg.Cluster)
	}
	if cfg.VolumeRadius > 0 {
		p.gatherer = volume.NewGatherer(cfg.Geometry, cfg.VolumeRadius)
	}
	return p
}

// SetClustererFactory replaces the single-plane clusterer. Each plane of
// each event gets a fresh instance.
func (p *Pipeline) SetClustererFactory(f func() cluster.ClustererInterface) {
	p.newCluster = f
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// SplitByView partitions time-sorted TPs by plane, preserving order.
func SplitByView(geom geometry.Geometry, tps []*event.TriggerPrimitive) [3][]*event.TriggerPrimitive {
	var out [3][]*event.TriggerPrimitive
	for _, tp := range tps {
		v := geom.ViewOf(tp.Channel)
		out[v] = append(out[v], tp)
	}
	return out
}

// ProcessEvent runs backtrack, clustering, aggregation, matching and volume
// gathering on s. s must be finalised and its TPs time-sorted. The store is
// mutated (truth links, time offset) and must not be shared with another
// ProcessEvent call.
func (p *Pipeline) ProcessEvent(ctx context.Context, s *event.Store) (*EventResult, error) {
	res := &EventResult{Event: s.Event}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !p.cfg.SkipBacktrack {
		res.Backtrack = p.backtrack.Run(s)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byView := SplitByView(p.cfg.Geometry, s.TPs)
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range geometry.Views {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.Clusters[v] = p.newCluster().Cluster(byView[v])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("event %d: clustering: %w", s.Event, err)
	}

	for _, v := range geometry.Views {
		p.aggregator.AggregateAll(res.Clusters[v])
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Triples = p.matcher.Match(res.PlaneClusters())

	if p.gatherer != nil {
		for _, seed := range res.Clusters[geometry.ViewX] {
			vol := p.gatherer.GatherCluster(seed, s.TPs)
			if vol.Size() == 0 {
				continue
			}
			p.aggregator.Aggregate(vol)
			res.Volumes = append(res.Volumes, vol)
		}
	}

	monitoring.Logf("[Pipeline] event %d: %d TPs -> U %d, V %d, X %d clusters, %d matches, %d volumes",
		s.Event, len(s.TPs), len(res.Clusters[geometry.ViewU]), len(res.Clusters[geometry.ViewV]),
		len(res.Clusters[geometry.ViewX]), len(res.Triples), len(res.Volumes))
	return res, nil
}
