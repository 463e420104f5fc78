package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Merge policies for clusters that are simultaneously time- and
// channel-close with an incoming TP.
const (
	MergePolicyMerge           = "merge"
	MergePolicyLegacyDuplicate = "legacy_duplicate"
)

// TuningConfig represents the root configuration for clustering, truth
// matching and geometry. Every field is optional: omitted fields fall back to
// the defaults returned by the Get* accessors, so partial configs are safe.
type TuningConfig struct {
	// Clustering params
	TicksLimit        *int64  `json:"ticks_limit,omitempty"`
	ChannelLimit      *int64  `json:"channel_limit,omitempty"`
	MinTPsToCluster   *int    `json:"min_tps_to_cluster,omitempty"`
	ADCIntegralCut    *int64  `json:"adc_integral_cut,omitempty"`
	TOTCut            *int64  `json:"tot_cut,omitempty"`
	SampleLengthTicks *int64  `json:"sample_length_ticks,omitempty"`
	MergePolicy       *string `json:"merge_policy,omitempty"`

	// Backtracker params
	BacktrackerErrorMargin *int64   `json:"backtracker_error_margin,omitempty"`
	TimeToleranceTicks     *int64   `json:"time_tolerance_ticks,omitempty"`
	ChannelTolerance       *int64   `json:"channel_tolerance,omitempty"`
	ChannelDistanceWeight  *float64 `json:"channel_distance_weight,omitempty"`
	ConversionTDCToTPC     *int64   `json:"conversion_tdc_to_tpc,omitempty"`

	// Three-view matching and volume gathering
	MatchRadiusCM        *float64 `json:"match_radius_cm,omitempty"`
	MatchTimeWindowTicks *int64   `json:"match_time_window_ticks,omitempty"`
	VolumeRadiusCM       *float64 `json:"volume_radius_cm,omitempty"`

	// Energy calibration: ADC integral per MeV
	ADCToMeV *float64 `json:"adc_to_mev,omitempty"`

	// Detector geometry
	NumAPAs                      *int     `json:"num_apas,omitempty"`
	EventsOffsetTicks            *int64   `json:"events_offset_ticks,omitempty"`
	APALengthCM                  *float64 `json:"apa_length_cm,omitempty"`
	APAHeightCM                  *float64 `json:"apa_height_cm,omitempty"`
	APAWidthCM                   *float64 `json:"apa_width_cm,omitempty"`
	WirePitchCollectionCM        *float64 `json:"wire_pitch_collection_cm,omitempty"`
	WirePitchInductionDiagonalCM *float64 `json:"wire_pitch_induction_diagonal_cm,omitempty"`
	WireAngleDeg                 *float64 `json:"wire_angle_deg,omitempty"`
	APAOffsetCM                  *float64 `json:"apa_offset_cm,omitempty"`
	TimeTickCM                   *float64 `json:"time_tick_cm,omitempty"`

	// Input tree names
	TPTree       *string `json:"tp_tree,omitempty"`
	ParticleTree *string `json:"particle_tree,omitempty"`
	MCTruthTree  *string `json:"mctruth_tree,omitempty"`
	SimIDETree   *string `json:"simide_tree,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		TicksLimit:                   ptrInt64(e.GetTicksLimit()),
		ChannelLimit:                 ptrInt64(e.GetChannelLimit()),
		MinTPsToCluster:              ptrInt(e.GetMinTPsToCluster()),
		ADCIntegralCut:               ptrInt64(e.GetADCIntegralCut()),
		TOTCut:                       ptrInt64(e.GetTOTCut()),
		SampleLengthTicks:            ptrInt64(e.GetSampleLengthTicks()),
		MergePolicy:                  ptrString(e.GetMergePolicy()),
		BacktrackerErrorMargin:       ptrInt64(e.GetBacktrackerErrorMargin()),
		TimeToleranceTicks:           ptrInt64(e.GetTimeToleranceTicks()),
		ChannelTolerance:             ptrInt64(e.GetChannelTolerance()),
		ChannelDistanceWeight:        ptrFloat64(e.GetChannelDistanceWeight()),
		ConversionTDCToTPC:           ptrInt64(e.GetConversionTDCToTPC()),
		MatchRadiusCM:                ptrFloat64(e.GetMatchRadiusCM()),
		MatchTimeWindowTicks:         ptrInt64(e.GetMatchTimeWindowTicks()),
		VolumeRadiusCM:               ptrFloat64(e.GetVolumeRadiusCM()),
		ADCToMeV:                     ptrFloat64(e.GetADCToMeV()),
		NumAPAs:                      ptrInt(e.GetNumAPAs()),
		EventsOffsetTicks:            ptrInt64(e.GetEventsOffsetTicks()),
		APALengthCM:                  ptrFloat64(e.GetAPALengthCM()),
		APAHeightCM:                  ptrFloat64(e.GetAPAHeightCM()),
		APAWidthCM:                   ptrFloat64(e.GetAPAWidthCM()),
		WirePitchCollectionCM:        ptrFloat64(e.GetWirePitchCollectionCM()),
		WirePitchInductionDiagonalCM: ptrFloat64(e.GetWirePitchInductionDiagonalCM()),
		WireAngleDeg:                 ptrFloat64(e.GetWireAngleDeg()),
		APAOffsetCM:                  ptrFloat64(e.GetAPAOffsetCM()),
		TimeTickCM:                   ptrFloat64(e.GetTimeTickCM()),
		TPTree:                       ptrString(e.GetTPTree()),
		ParticleTree:                 ptrString(e.GetParticleTree()),
		MCTruthTree:                  ptrString(e.GetMCTruthTree()),
		SimIDETree:                   ptrString(e.GetSimIDETree()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/tpc/<pkg>/
		"../../../../" + DefaultConfigPath, // from internal/tpc/<pkg>/<sub>/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.TicksLimit != nil && *c.TicksLimit < 0 {
		return fmt.Errorf("ticks_limit must be non-negative, got %d", *c.TicksLimit)
	}
	if c.ChannelLimit != nil && *c.ChannelLimit < 0 {
		return fmt.Errorf("channel_limit must be non-negative, got %d", *c.ChannelLimit)
	}
	if c.MinTPsToCluster != nil && *c.MinTPsToCluster < 1 {
		return fmt.Errorf("min_tps_to_cluster must be at least 1, got %d", *c.MinTPsToCluster)
	}
	if c.TOTCut != nil && *c.TOTCut < 0 {
		return fmt.Errorf("tot_cut must be non-negative, got %d", *c.TOTCut)
	}
	if c.SampleLengthTicks != nil && *c.SampleLengthTicks <= 0 {
		return fmt.Errorf("sample_length_ticks must be positive, got %d", *c.SampleLengthTicks)
	}
	if c.MergePolicy != nil {
		switch *c.MergePolicy {
		case "", MergePolicyMerge, MergePolicyLegacyDuplicate:
		default:
			return fmt.Errorf("merge_policy must be %q or %q, got %q",
				MergePolicyMerge, MergePolicyLegacyDuplicate, *c.MergePolicy)
		}
	}
	if c.BacktrackerErrorMargin != nil && *c.BacktrackerErrorMargin < 0 {
		return fmt.Errorf("backtracker_error_margin must be non-negative, got %d", *c.BacktrackerErrorMargin)
	}
	if c.TimeToleranceTicks != nil && *c.TimeToleranceTicks < 0 {
		return fmt.Errorf("time_tolerance_ticks must be non-negative, got %d", *c.TimeToleranceTicks)
	}
	if c.ChannelTolerance != nil && *c.ChannelTolerance < 0 {
		return fmt.Errorf("channel_tolerance must be non-negative, got %d", *c.ChannelTolerance)
	}
	if c.ChannelDistanceWeight != nil && *c.ChannelDistanceWeight < 0 {
		return fmt.Errorf("channel_distance_weight must be non-negative, got %f", *c.ChannelDistanceWeight)
	}
	if c.ConversionTDCToTPC != nil && *c.ConversionTDCToTPC <= 0 {
		return fmt.Errorf("conversion_tdc_to_tpc must be positive, got %d", *c.ConversionTDCToTPC)
	}
	if c.MatchRadiusCM != nil && *c.MatchRadiusCM <= 0 {
		return fmt.Errorf("match_radius_cm must be positive, got %f", *c.MatchRadiusCM)
	}
	if c.MatchTimeWindowTicks != nil && *c.MatchTimeWindowTicks < 0 {
		return fmt.Errorf("match_time_window_ticks must be non-negative, got %d", *c.MatchTimeWindowTicks)
	}
	if c.VolumeRadiusCM != nil && *c.VolumeRadiusCM < 0 {
		return fmt.Errorf("volume_radius_cm must be non-negative, got %f", *c.VolumeRadiusCM)
	}
	if c.ADCToMeV != nil && *c.ADCToMeV <= 0 {
		return fmt.Errorf("adc_to_mev must be positive, got %f", *c.ADCToMeV)
	}
	if c.NumAPAs != nil && *c.NumAPAs < 1 {
		return fmt.Errorf("num_apas must be at least 1, got %d", *c.NumAPAs)
	}
	if c.EventsOffsetTicks != nil && *c.EventsOffsetTicks < 0 {
		return fmt.Errorf("events_offset_ticks must be non-negative, got %d", *c.EventsOffsetTicks)
	}
	if c.WireAngleDeg != nil && (*c.WireAngleDeg <= 0 || *c.WireAngleDeg >= 90) {
		return fmt.Errorf("wire_angle_deg must be in (0, 90), got %f", *c.WireAngleDeg)
	}
	for name, v := range map[string]*float64{
		"apa_length_cm":                    c.APALengthCM,
		"apa_height_cm":                    c.APAHeightCM,
		"wire_pitch_collection_cm":         c.WirePitchCollectionCM,
		"wire_pitch_induction_diagonal_cm": c.WirePitchInductionDiagonalCM,
		"time_tick_cm":                     c.TimeTickCM,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	return nil
}

// GetTicksLimit returns the ticks_limit value or the default.
func (c *TuningConfig) GetTicksLimit() int64 {
	if c.TicksLimit == nil {
		return 3
	}
	return *c.TicksLimit
}

// GetChannelLimit returns the channel_limit value or the default.
func (c *TuningConfig) GetChannelLimit() int64 {
	if c.ChannelLimit == nil {
		return 1
	}
	return *c.ChannelLimit
}

// GetMinTPsToCluster returns the min_tps_to_cluster value or the default.
func (c *TuningConfig) GetMinTPsToCluster() int {
	if c.MinTPsToCluster == nil {
		return 1
	}
	return *c.MinTPsToCluster
}

// GetADCIntegralCut returns the adc_integral_cut value or the default.
func (c *TuningConfig) GetADCIntegralCut() int64 {
	if c.ADCIntegralCut == nil {
		return 0
	}
	return *c.ADCIntegralCut
}

// GetTOTCut returns the tot_cut value or the default.
func (c *TuningConfig) GetTOTCut() int64 {
	if c.TOTCut == nil {
		return 2
	}
	return *c.TOTCut
}

// GetSampleLengthTicks returns the sample_length_ticks value or the default.
func (c *TuningConfig) GetSampleLengthTicks() int64 {
	if c.SampleLengthTicks == nil {
		return 1
	}
	return *c.SampleLengthTicks
}

// GetMergePolicy returns the merge_policy value or the default.
func (c *TuningConfig) GetMergePolicy() string {
	if c.MergePolicy == nil || *c.MergePolicy == "" {
		return MergePolicyMerge
	}
	return *c.MergePolicy
}

// GetBacktrackerErrorMargin returns the backtracker_error_margin value or the default.
func (c *TuningConfig) GetBacktrackerErrorMargin() int64 {
	if c.BacktrackerErrorMargin == nil {
		return 10
	}
	return *c.BacktrackerErrorMargin
}

// GetTimeToleranceTicks returns the time_tolerance_ticks value or the default.
func (c *TuningConfig) GetTimeToleranceTicks() int64 {
	if c.TimeToleranceTicks == nil {
		return 5000
	}
	return *c.TimeToleranceTicks
}

// GetChannelTolerance returns the channel_tolerance value or the default.
func (c *TuningConfig) GetChannelTolerance() int64 {
	if c.ChannelTolerance == nil {
		return 50
	}
	return *c.ChannelTolerance
}

// GetChannelDistanceWeight returns the channel_distance_weight value or the default.
func (c *TuningConfig) GetChannelDistanceWeight() float64 {
	if c.ChannelDistanceWeight == nil {
		return 20
	}
	return *c.ChannelDistanceWeight
}

// GetConversionTDCToTPC returns the conversion_tdc_to_tpc value or the default.
func (c *TuningConfig) GetConversionTDCToTPC() int64 {
	if c.ConversionTDCToTPC == nil {
		return 32
	}
	return *c.ConversionTDCToTPC
}

// GetMatchRadiusCM returns the match_radius_cm value or the default.
func (c *TuningConfig) GetMatchRadiusCM() float64 {
	if c.MatchRadiusCM == nil {
		return 5
	}
	return *c.MatchRadiusCM
}

// GetMatchTimeWindowTicks returns the match_time_window_ticks value or the default.
func (c *TuningConfig) GetMatchTimeWindowTicks() int64 {
	if c.MatchTimeWindowTicks == nil {
		return 5000
	}
	return *c.MatchTimeWindowTicks
}

// GetVolumeRadiusCM returns the volume_radius_cm value or the default.
// Zero disables volume gathering in the pipeline.
func (c *TuningConfig) GetVolumeRadiusCM() float64 {
	if c.VolumeRadiusCM == nil {
		return 0
	}
	return *c.VolumeRadiusCM
}

// GetADCToMeV returns the adc_to_mev value or the default.
func (c *TuningConfig) GetADCToMeV() float64 {
	if c.ADCToMeV == nil {
		return 4000
	}
	return *c.ADCToMeV
}

// GetNumAPAs returns the num_apas value or the default.
func (c *TuningConfig) GetNumAPAs() int {
	if c.NumAPAs == nil {
		return 12
	}
	return *c.NumAPAs
}

// GetEventsOffsetTicks returns the events_offset_ticks value or the default.
// Zero disables folding of time_start into a per-event interval.
func (c *TuningConfig) GetEventsOffsetTicks() int64 {
	if c.EventsOffsetTicks == nil {
		return 0
	}
	return *c.EventsOffsetTicks
}

// GetAPALengthCM returns the apa_length_cm value or the default.
func (c *TuningConfig) GetAPALengthCM() float64 {
	if c.APALengthCM == nil {
		return 230
	}
	return *c.APALengthCM
}

// GetAPAHeightCM returns the apa_height_cm value or the default.
func (c *TuningConfig) GetAPAHeightCM() float64 {
	if c.APAHeightCM == nil {
		return 598.4
	}
	return *c.APAHeightCM
}

// GetAPAWidthCM returns the apa_width_cm value or the default.
func (c *TuningConfig) GetAPAWidthCM() float64 {
	if c.APAWidthCM == nil {
		return 4.7
	}
	return *c.APAWidthCM
}

// GetWirePitchCollectionCM returns the wire_pitch_collection_cm value or the default.
func (c *TuningConfig) GetWirePitchCollectionCM() float64 {
	if c.WirePitchCollectionCM == nil {
		return 0.479
	}
	return *c.WirePitchCollectionCM
}

// GetWirePitchInductionDiagonalCM returns the wire_pitch_induction_diagonal_cm value or the default.
func (c *TuningConfig) GetWirePitchInductionDiagonalCM() float64 {
	if c.WirePitchInductionDiagonalCM == nil {
		return 0.4669
	}
	return *c.WirePitchInductionDiagonalCM
}

// GetWireAngleDeg returns the wire_angle_deg value or the default.
func (c *TuningConfig) GetWireAngleDeg() float64 {
	if c.WireAngleDeg == nil {
		return 54.3
	}
	return *c.WireAngleDeg
}

// GetAPAOffsetCM returns the apa_offset_cm value or the default.
func (c *TuningConfig) GetAPAOffsetCM() float64 {
	if c.APAOffsetCM == nil {
		return 2.4
	}
	return *c.APAOffsetCM
}

// GetTimeTickCM returns the time_tick_cm value or the default.
func (c *TuningConfig) GetTimeTickCM() float64 {
	if c.TimeTickCM == nil {
		return 0.0805
	}
	return *c.TimeTickCM
}

// GetTPTree returns the tp_tree value or the default.
func (c *TuningConfig) GetTPTree() string {
	if c.TPTree == nil {
		return "triggerAnaDumpTPs/TriggerPrimitives/tpmakerTPC__TriggerAnaTree1x2x2"
	}
	return *c.TPTree
}

// GetParticleTree returns the particle_tree value or the default.
func (c *TuningConfig) GetParticleTree() string {
	if c.ParticleTree == nil {
		return "triggerAnaDumpTPs/mcparticles"
	}
	return *c.ParticleTree
}

// GetMCTruthTree returns the mctruth_tree value or the default.
func (c *TuningConfig) GetMCTruthTree() string {
	if c.MCTruthTree == nil {
		return "triggerAnaDumpTPs/mctruths"
	}
	return *c.MCTruthTree
}

// GetSimIDETree returns the simide_tree value or the default.
func (c *TuningConfig) GetSimIDETree() string {
	if c.SimIDETree == nil {
		return "triggerAnaDumpTPs/simides"
	}
	return *c.SimIDETree
}
