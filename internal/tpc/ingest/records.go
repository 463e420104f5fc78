package ingest

// TPRecord is a raw trigger primitive before conversion.
type TPRecord struct {
	Event      int64
	Version    int
	DetectorID uint64
	Channel    uint64
	TimeStart  int64

	// Version 1 (TDC units).
	TimeOverThreshold int64
	TimePeak          int64

	// Version 2 (samples).
	SamplesOverThreshold int64
	SamplesToPeak        int64

	ADCIntegral int64
	ADCPeak     int64
}

// ParticleRecord is a raw Geant4 particle.
type ParticleRecord struct {
	Event      int64
	X, Y, Z    float64
	Px, Py, Pz float64
	Energy     float64
	Generator  string
	PDG        int64
	Process    string
	TrackID    int64
	TruthID    int64
	StatusCode int64
}

// TruthRecord is a raw Monte-Carlo primary record.
type TruthRecord struct {
	Event       int64
	TruthID     int64
	Generator   string
	Interaction string
}

// DepositRecord is a raw energy deposition on one wire.
type DepositRecord struct {
	Event     int64
	Channel   uint64
	Timestamp int64
	TrackID   int64
}

// TP decodes a trigger primitive row. The version falls back to 1 when the
// row carries only TDC-unit durations, else 2.
func (r *Resolver) TP(row Row) TPRecord {
	rec := TPRecord{
		Event:       r.Int(row, FieldEvent),
		Channel:     r.Uint(row, FieldChannel),
		TimeStart:   r.Int(row, FieldTimeStart),
		ADCIntegral: r.Int(row, FieldADCIntegral),
		ADCPeak:     r.Int(row, FieldADCPeak),
	}
	if r.Has(row, FieldDetector) {
		rec.DetectorID = r.Uint(row, FieldDetector)
	}

	switch {
	case r.Has(row, FieldVersion):
		rec.Version = int(r.Int(row, FieldVersion))
	case r.Has(row, FieldTimeOverThreshold) && !r.Has(row, FieldSamplesOverThreshold):
		rec.Version = 1
	default:
		rec.Version = 2
	}

	if rec.Version == 1 {
		rec.TimeOverThreshold = r.Int(row, FieldTimeOverThreshold)
		rec.TimePeak = r.Int(row, FieldTimePeak)
	} else {
		rec.SamplesOverThreshold = r.Int(row, FieldSamplesOverThreshold)
		rec.SamplesToPeak = r.Int(row, FieldSamplesToPeak)
	}
	return rec
}

// Particle decodes a Geant4 particle row.
func (r *Resolver) Particle(row Row) ParticleRecord {
	return ParticleRecord{
		Event:      r.Int(row, FieldEvent),
		X:          r.Float(row, FieldX),
		Y:          r.Float(row, FieldY),
		Z:          r.Float(row, FieldZ),
		Px:         r.Float(row, FieldPx),
		Py:         r.Float(row, FieldPy),
		Pz:         r.Float(row, FieldPz),
		Energy:     r.Float(row, FieldEnergy),
		Generator:  r.String(row, FieldGenerator),
		PDG:        r.Int(row, FieldPDG),
		Process:    r.String(row, FieldProcess),
		TrackID:    r.Int(row, FieldTrackID),
		TruthID:    r.Int(row, FieldTruthID),
		StatusCode: r.Int(row, FieldStatusCode),
	}
}

// Truth decodes a Monte-Carlo truth row. Generator and interaction are
// optional.
func (r *Resolver) Truth(row Row) TruthRecord {
	rec := TruthRecord{
		Event:   r.Int(row, FieldEvent),
		TruthID: r.Int(row, FieldTruthID),
	}
	if r.Has(row, FieldGenerator) {
		rec.Generator = r.String(row, FieldGenerator)
	}
	if r.Has(row, FieldInteraction) {
		rec.Interaction = r.String(row, FieldInteraction)
	}
	return rec
}

// Deposit decodes an energy deposition row.
func (r *Resolver) Deposit(row Row) DepositRecord {
	return DepositRecord{
		Event:     r.Int(row, FieldEvent),
		Channel:   r.Uint(row, FieldChannel),
		Timestamp: r.Int(row, FieldTimestamp),
		TrackID:   r.Int(row, FieldTrackID),
	}
}
