package rootio

import (
	"context"
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// DefaultClusterTree is the tree name used for cluster output.
const DefaultClusterTree = "clusters"

// clusterBranches is the write buffer bound to the tree's branches.
type clusterBranches struct {
	event     int64
	apa       uint64
	view      string
	threeView bool
	nTPs      int32

	trueDirX, trueDirY, trueDirZ float64
	truePosX, truePosY, truePosZ float64
	trueNuEnergy, truePEnergy    float64
	trueLabel, trueInteraction   string

	recoX, recoY, recoZ float64
	minDistance         float64
	snFraction          float64
	genFraction         float64

	totalCharge int64
	totalEnergy float64
	conversion  float64

	tpChannel  []uint64
	tpDetector []uint64
	tpSOT      []int64
	tpStart    []int64
	tpSTP      []int64
	tpPeak     []int64
	tpIntegral []int64
}

func (b *clusterBranches) vars() []rtree.WriteVar {
	return []rtree.WriteVar{
		{Name: "event", Value: &b.event},
		{Name: "apa", Value: &b.apa},
		{Name: "view", Value: &b.view},
		{Name: "three_view", Value: &b.threeView},
		{Name: "n_tps", Value: &b.nTPs},
		{Name: "true_dir_x", Value: &b.trueDirX},
		{Name: "true_dir_y", Value: &b.trueDirY},
		{Name: "true_dir_z", Value: &b.trueDirZ},
		{Name: "true_pos_x", Value: &b.truePosX},
		{Name: "true_pos_y", Value: &b.truePosY},
		{Name: "true_pos_z", Value: &b.truePosZ},
		{Name: "true_neutrino_energy", Value: &b.trueNuEnergy},
		{Name: "true_particle_energy", Value: &b.truePEnergy},
		{Name: "true_label", Value: &b.trueLabel},
		{Name: "true_interaction", Value: &b.trueInteraction},
		{Name: "reco_pos_x", Value: &b.recoX},
		{Name: "reco_pos_y", Value: &b.recoY},
		{Name: "reco_pos_z", Value: &b.recoZ},
		{Name: "min_distance_from_true_pos", Value: &b.minDistance},
		{Name: "supernova_tp_fraction", Value: &b.snFraction},
		{Name: "generator_tp_fraction", Value: &b.genFraction},
		{Name: "total_charge", Value: &b.totalCharge},
		{Name: "total_energy", Value: &b.totalEnergy},
		{Name: "conversion_factor", Value: &b.conversion},
		{Name: "tp_detector_channel", Value: &b.tpChannel, Count: "n_tps"},
		{Name: "tp_detector", Value: &b.tpDetector, Count: "n_tps"},
		{Name: "tp_samples_over_threshold", Value: &b.tpSOT, Count: "n_tps"},
		{Name: "tp_time_start", Value: &b.tpStart, Count: "n_tps"},
		{Name: "tp_samples_to_peak", Value: &b.tpSTP, Count: "n_tps"},
		{Name: "tp_adc_peak", Value: &b.tpPeak, Count: "n_tps"},
		{Name: "tp_adc_integral", Value: &b.tpIntegral, Count: "n_tps"},
	}
}

func (b *clusterBranches) load(rec record.ClusterRecord) {
	b.event = rec.Event
	b.apa = rec.APA
	b.view = rec.View
	b.threeView = rec.ThreeView
	b.nTPs = int32(len(rec.TPTimeStart))
	b.trueDirX, b.trueDirY, b.trueDirZ = rec.TrueDirX, rec.TrueDirY, rec.TrueDirZ
	b.truePosX, b.truePosY, b.truePosZ = rec.TruePosX, rec.TruePosY, rec.TruePosZ
	b.trueNuEnergy = rec.TrueNeutrinoEnergy
	b.truePEnergy = rec.TrueParticleEnergy
	b.trueLabel = rec.TrueLabel
	b.trueInteraction = rec.TrueInteraction
	b.recoX, b.recoY, b.recoZ = rec.RecoPosX, rec.RecoPosY, rec.RecoPosZ
	b.minDistance = rec.MinDistanceFromTruePos
	b.snFraction = rec.SupernovaTPFraction
	b.genFraction = rec.GeneratorTPFraction
	b.totalCharge = rec.TotalCharge
	b.totalEnergy = rec.TotalEnergy
	b.conversion = rec.ConversionFactor
	b.tpChannel = rec.TPDetectorChannel
	b.tpDetector = rec.TPDetector
	b.tpSOT = rec.TPSamplesOverThreshold
	b.tpStart = rec.TPTimeStart
	b.tpSTP = rec.TPSamplesToPeak
	b.tpPeak = rec.TPADCPeak
	b.tpIntegral = rec.TPADCIntegral
}

// ClusterWriter appends cluster records to a TTree.
type ClusterWriter struct {
	path string
	f    *riofs.File
	w    rtree.Writer
	buf  *clusterBranches
	n    int
}

// Create opens path for writing and declares the cluster tree.
func Create(path, tree string) (*ClusterWriter, error) {
	if tree == "" {
		tree = DefaultClusterTree
	}
	f, err := groot.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	buf := new(clusterBranches)
	w, err := rtree.NewWriter(f, tree, buf.vars())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tree %s in %s: %w", tree, path, err)
	}
	return &ClusterWriter{path: path, f: f, w: w, buf: buf}, nil
}

// Write appends one record.
func (cw *ClusterWriter) Write(rec record.ClusterRecord) error {
	cw.buf.load(rec)
	if _, err := cw.w.Write(); err != nil {
		return fmt.Errorf("write cluster %d of %s: %w", cw.n, cw.path, err)
	}
	cw.n++
	return nil
}

// WriteClusters appends every record of an event. It satisfies the pipeline
// sink contract.
func (cw *ClusterWriter) WriteClusters(ctx context.Context, event int64, recs []record.ClusterRecord) error {
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records written so far.
func (cw *ClusterWriter) Count() int {
	return cw.n
}

// Close flushes the tree and closes the file.
func (cw *ClusterWriter) Close() error {
	if err := cw.w.Close(); err != nil {
		cw.f.Close()
		return fmt.Errorf("close tree in %s: %w", cw.path, err)
	}
	if err := cw.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", cw.path, err)
	}
	return nil
}

// ReadClusters loads every record of a cluster tree written by ClusterWriter.
func ReadClusters(ctx context.Context, path, tree string) ([]record.ClusterRecord, error) {
	if tree == "" {
		tree = DefaultClusterTree
	}
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []record.ClusterRecord
	found, err := readTree(ctx, riofs.Dir(f), tree, func(row ingest.Row) {
		out = append(out, decodeCluster(row))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: no tree %q", path, tree)
	}
	return out, nil
}

func decodeCluster(row ingest.Row) record.ClusterRecord {
	return record.ClusterRecord{
		Event:                  get[int64](row, "event"),
		APA:                    get[uint64](row, "apa"),
		View:                   get[string](row, "view"),
		ThreeView:              get[bool](row, "three_view"),
		NTPs:                   int(get[int32](row, "n_tps")),
		TrueDirX:               get[float64](row, "true_dir_x"),
		TrueDirY:               get[float64](row, "true_dir_y"),
		TrueDirZ:               get[float64](row, "true_dir_z"),
		TruePosX:               get[float64](row, "true_pos_x"),
		TruePosY:               get[float64](row, "true_pos_y"),
		TruePosZ:               get[float64](row, "true_pos_z"),
		TrueNeutrinoEnergy:     get[float64](row, "true_neutrino_energy"),
		TrueParticleEnergy:     get[float64](row, "true_particle_energy"),
		TrueLabel:              get[string](row, "true_label"),
		TrueInteraction:        get[string](row, "true_interaction"),
		RecoPosX:               get[float64](row, "reco_pos_x"),
		RecoPosY:               get[float64](row, "reco_pos_y"),
		RecoPosZ:               get[float64](row, "reco_pos_z"),
		MinDistanceFromTruePos: get[float64](row, "min_distance_from_true_pos"),
		SupernovaTPFraction:    get[float64](row, "supernova_tp_fraction"),
		GeneratorTPFraction:    get[float64](row, "generator_tp_fraction"),
		TotalCharge:            get[int64](row, "total_charge"),
		TotalEnergy:            get[float64](row, "total_energy"),
		ConversionFactor:       get[float64](row, "conversion_factor"),
		TPDetectorChannel:      get[[]uint64](row, "tp_detector_channel"),
		TPDetector:             get[[]uint64](row, "tp_detector"),
		TPSamplesOverThreshold: get[[]int64](row, "tp_samples_over_threshold"),
		TPTimeStart:            get[[]int64](row, "tp_time_start"),
		TPSamplesToPeak:        get[[]int64](row, "tp_samples_to_peak"),
		TPADCPeak:              get[[]int64](row, "tp_adc_peak"),
		TPADCIntegral:          get[[]int64](row, "tp_adc_integral"),
	}
}

func get[T any](row ingest.Row, name string) T {
	v, _ := row[name].(T)
	return v
}
