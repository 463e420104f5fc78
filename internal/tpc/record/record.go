// Package record defines the flat cluster record handed to the output
// stores (SQLite, ROOT, gRPC).
package record

import (
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/cluster"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
)

// Kind says which stage produced a record.
type Kind int

const (
	KindPlane     Kind = iota // single-plane cluster
	KindThreeView             // joined U+V+X cluster
	KindVolume                // TPs gathered around a collection seed
)

// View labels used for records that span more than one plane.
const (
	ViewThree  = "3D"
	ViewVolume = "VOLUME"
)

// ClusterRecord is one output cluster with parallel per-TP arrays.
type ClusterRecord struct {
	Event     int64  `json:"event"`
	APA       uint64 `json:"apa"`
	View      string `json:"view"`
	ThreeView bool   `json:"three_view"`
	NTPs      int    `json:"n_tps"`

	TrueDirX           float64 `json:"true_dir_x"`
	TrueDirY           float64 `json:"true_dir_y"`
	TrueDirZ           float64 `json:"true_dir_z"`
	TruePosX           float64 `json:"true_pos_x"`
	TruePosY           float64 `json:"true_pos_y"`
	TruePosZ           float64 `json:"true_pos_z"`
	TrueNeutrinoEnergy float64 `json:"true_neutrino_energy"`
	TrueParticleEnergy float64 `json:"true_particle_energy"`
	TrueLabel          string  `json:"true_label"`
	TrueInteraction    string  `json:"true_interaction"`

	RecoPosX               float64 `json:"reco_pos_x"`
	RecoPosY               float64 `json:"reco_pos_y"`
	RecoPosZ               float64 `json:"reco_pos_z"`
	MinDistanceFromTruePos float64 `json:"min_distance_from_true_pos"`
	SupernovaTPFraction    float64 `json:"supernova_tp_fraction"`
	GeneratorTPFraction    float64 `json:"generator_tp_fraction"`

	TotalCharge      int64   `json:"total_charge"`
	TotalEnergy      float64 `json:"total_energy"`
	ConversionFactor float64 `json:"conversion_factor"`

	TPDetectorChannel      []uint64 `json:"tp_detector_channel"`
	TPDetector             []uint64 `json:"tp_detector"`
	TPSamplesOverThreshold []int64  `json:"tp_samples_over_threshold"`
	TPTimeStart            []int64  `json:"tp_time_start"`
	TPSamplesToPeak        []int64  `json:"tp_samples_to_peak"`
	TPADCPeak              []int64  `json:"tp_adc_peak"`
	TPADCIntegral          []int64  `json:"tp_adc_integral"`
}

// New flattens an aggregated cluster. adcPerMeV is the charge calibration
// used for total_energy and reported as conversion_factor.
func New(geom geometry.Geometry, c *cluster.Cluster, adcPerMeV float64, kind Kind) ClusterRecord {
	threeView := kind == KindThreeView
	rec := ClusterRecord{
		Event:     c.Event,
		APA:       c.APA,
		View:      c.View.String(),
		ThreeView: threeView,
		NTPs:      c.Size(),

		TrueDirX:           c.TrueDir.X,
		TrueDirY:           c.TrueDir.Y,
		TrueDirZ:           c.TrueDir.Z,
		TruePosX:           c.TruePos.X,
		TruePosY:           c.TruePos.Y,
		TruePosZ:           c.TruePos.Z,
		TrueNeutrinoEnergy: c.TrueNeutrinoEnergy,
		TrueParticleEnergy: c.TrueParticleEnergy,
		TrueLabel:          c.TrueLabel,
		TrueInteraction:    string(c.TrueInteraction),

		RecoPosX:               c.RecoPos.X,
		RecoPosY:               c.RecoPos.Y,
		RecoPosZ:               c.RecoPos.Z,
		MinDistanceFromTruePos: c.MinDistance,
		SupernovaTPFraction:    c.SupernovaFraction,
		GeneratorTPFraction:    c.GeneratorFraction,

		TotalCharge:      c.TotalCharge,
		ConversionFactor: adcPerMeV,
	}
	if adcPerMeV > 0 {
		rec.TotalEnergy = float64(c.TotalCharge) / adcPerMeV
	}
	switch kind {
	case KindThreeView:
		rec.View = ViewThree
	case KindVolume:
		rec.View = ViewVolume
	}

	n := c.Size()
	rec.TPDetectorChannel = make([]uint64, n)
	rec.TPDetector = make([]uint64, n)
	rec.TPSamplesOverThreshold = make([]int64, n)
	rec.TPTimeStart = make([]int64, n)
	rec.TPSamplesToPeak = make([]int64, n)
	rec.TPADCPeak = make([]int64, n)
	rec.TPADCIntegral = make([]int64, n)
	for i, tp := range c.TPs {
		ch := geom.Decode(tp.Channel)
		rec.TPDetectorChannel[i] = ch.Local
		rec.TPDetector[i] = ch.APA
		rec.TPSamplesOverThreshold[i] = tp.SamplesOverThreshold
		rec.TPTimeStart[i] = tp.TimeStart
		rec.TPSamplesToPeak[i] = tp.SamplesToPeak
		rec.TPADCPeak[i] = tp.ADCPeak
		rec.TPADCIntegral[i] = tp.ADCIntegral
	}
	return rec
}

// GlobalChannels rebuilds the global channel of every TP.
func (r ClusterRecord) GlobalChannels(geom geometry.Geometry) []uint64 {
	out := make([]uint64, len(r.TPDetectorChannel))
	for i := range out {
		out[i] = r.TPDetector[i]*geom.ChannelsPerAPA + r.TPDetectorChannel[i]
	}
	return out
}

// MatchRecord links a joined cluster to its three plane clusters. The
// indexes point into the same event's record slice.
type MatchRecord struct {
	Event  int64   `json:"event"`
	APA    uint64  `json:"apa"`
	U      int     `json:"u"`
	V      int     `json:"v"`
	X      int     `json:"x"`
	Joined int     `json:"joined"`
	YU     float64 `json:"y_u"`
	YV     float64 `json:"y_v"`
}
