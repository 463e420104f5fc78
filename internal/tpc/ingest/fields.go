package ingest

import (
	"fmt"
	"math"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
)

// Row is one input record keyed by branch name.
type Row map[string]any

// FieldSpec names a canonical field and the historical spellings that may
// carry the same value.
type FieldSpec struct {
	Name    string
	Aliases []string
}

// Names returns the canonical name followed by the aliases.
func (f FieldSpec) Names() []string {
	return append([]string{f.Name}, f.Aliases...)
}

// Trigger primitive fields.
var (
	FieldEvent                = FieldSpec{Name: "event"}
	FieldVersion              = FieldSpec{Name: "version"}
	FieldDetector             = FieldSpec{Name: "detid", Aliases: []string{"detector_id", "detector"}}
	FieldChannel              = FieldSpec{Name: "channel"}
	FieldTimeStart            = FieldSpec{Name: "time_start"}
	FieldTimeOverThreshold    = FieldSpec{Name: "time_over_threshold", Aliases: []string{"time_over_threhsold"}}
	FieldTimePeak             = FieldSpec{Name: "time_peak", Aliases: []string{"time_peek"}}
	FieldSamplesOverThreshold = FieldSpec{Name: "samples_over_threshold", Aliases: []string{"samples_over_thershold"}}
	FieldSamplesToPeak        = FieldSpec{Name: "samples_to_peak", Aliases: []string{"samples_to_peek"}}
	FieldADCIntegral          = FieldSpec{Name: "adc_integral"}
	FieldADCPeak              = FieldSpec{Name: "adc_peak"}
)

// Particle, truth and deposition fields.
var (
	FieldX           = FieldSpec{Name: "x"}
	FieldY           = FieldSpec{Name: "y"}
	FieldZ           = FieldSpec{Name: "z"}
	FieldPx          = FieldSpec{Name: "Px", Aliases: []string{"px"}}
	FieldPy          = FieldSpec{Name: "Py", Aliases: []string{"py"}}
	FieldPz          = FieldSpec{Name: "Pz", Aliases: []string{"pz"}}
	FieldEnergy      = FieldSpec{Name: "energy", Aliases: []string{"en"}}
	FieldGenerator   = FieldSpec{Name: "generator_name"}
	FieldPDG         = FieldSpec{Name: "pdg"}
	FieldProcess     = FieldSpec{Name: "process"}
	FieldTrackID     = FieldSpec{Name: "track_id"}
	FieldTruthID     = FieldSpec{Name: "truth_id"}
	FieldStatusCode  = FieldSpec{Name: "status_code"}
	FieldInteraction = FieldSpec{Name: "interaction"}
	FieldTimestamp   = FieldSpec{Name: "timestamp"}
)

// Resolver reads typed values out of Rows, resolving aliases and warning
// once per field when a value is missing or unreadable.
type Resolver struct {
	source string
	warn   *monitoring.OnceLogger
}

// NewResolver returns a resolver whose warnings are tagged with source,
// typically the input file name.
func NewResolver(source string) *Resolver {
	return &Resolver{source: source, warn: monitoring.NewOnceLogger()}
}

// Warnings returns how many distinct fields have been warned about.
func (r *Resolver) Warnings() int {
	return r.warn.Count()
}

// lookup returns the raw value for f. A non-zero canonical value wins; else
// the first non-zero alias; else any value present (zero); else nil.
func (r *Resolver) lookup(row Row, f FieldSpec) any {
	var fallback any
	found := false
	for _, name := range f.Names() {
		v, ok := row[name]
		if !ok {
			continue
		}
		if !isZero(v) {
			return v
		}
		if !found {
			fallback, found = v, true
		}
	}
	if !found {
		r.warn.Warnf(r.source+"/missing/"+f.Name, "[Ingest] %s: field %q not found (tried %v); using zero", r.source, f.Name, f.Names())
		return nil
	}
	return fallback
}

// Has reports whether row carries f under any spelling.
func (r *Resolver) Has(row Row, f FieldSpec) bool {
	for _, name := range f.Names() {
		if _, ok := row[name]; ok {
			return true
		}
	}
	return false
}

// Int returns f as int64, zero if missing or malformed.
func (r *Resolver) Int(row Row, f FieldSpec) int64 {
	v := r.lookup(row, f)
	if v == nil {
		return 0
	}
	n, ok := toInt64(v)
	if !ok {
		r.malformed(f, v)
	}
	return n
}

// Uint returns f as uint64, zero if missing, malformed or negative.
func (r *Resolver) Uint(row Row, f FieldSpec) uint64 {
	v := r.lookup(row, f)
	if v == nil {
		return 0
	}
	if u, ok := v.(uint64); ok {
		return u
	}
	n, ok := toInt64(v)
	if !ok || n < 0 {
		r.malformed(f, v)
		return 0
	}
	return uint64(n)
}

// Float returns f as float64, zero if missing or malformed.
func (r *Resolver) Float(row Row, f FieldSpec) float64 {
	v := r.lookup(row, f)
	if v == nil {
		return 0
	}
	x, ok := toFloat64(v)
	if !ok {
		r.malformed(f, v)
	}
	return x
}

// String returns f as a string, empty if missing or malformed.
func (r *Resolver) String(row Row, f FieldSpec) string {
	v := r.lookup(row, f)
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		r.malformed(f, v)
		return ""
	}
}

func (r *Resolver) malformed(f FieldSpec, v any) {
	r.warn.Warnf(r.source+"/malformed/"+f.Name, "[Ingest] %s: field %q has unreadable type %T; using zero", r.source, f.Name, v)
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	}
	if f, ok := toFloat64(v); ok {
		return f == 0
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float32:
		return int64(x), true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case uint64:
		return float64(x), true
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

// String implements fmt.Stringer for log output.
func (f FieldSpec) String() string {
	if len(f.Aliases) == 0 {
		return f.Name
	}
	return fmt.Sprintf("%s%v", f.Name, f.Aliases)
}
