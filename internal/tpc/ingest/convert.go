package ingest

import (
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/event"
)

// ConvertTP turns a raw record into a trigger primitive. Version-1 records
// carry durations in timestamp units, which are divided by the conversion
// factor to give TPC samples.
func ConvertTP(rec TPRecord, conversion int64) event.TriggerPrimitive {
	tp := event.TriggerPrimitive{
		Event:                rec.Event,
		Version:              rec.Version,
		DetectorID:           rec.DetectorID,
		Channel:              rec.Channel,
		TimeStart:            rec.TimeStart,
		SamplesOverThreshold: rec.SamplesOverThreshold,
		SamplesToPeak:        rec.SamplesToPeak,
		ADCIntegral:          rec.ADCIntegral,
		ADCPeak:              rec.ADCPeak,
	}
	if rec.Version == 1 && conversion > 0 {
		tp.SamplesOverThreshold = rec.TimeOverThreshold / conversion
		tp.SamplesToPeak = (rec.TimePeak - rec.TimeStart) / conversion
	}
	return tp
}

// PromoteChannel converts a detector-local channel to a global one. A
// channel is local when the detector id is non-zero and the channel is below
// channelsPerAPA; anything else is already global.
func PromoteChannel(channel, detectorID, channelsPerAPA uint64) uint64 {
	if detectorID != 0 && channel < channelsPerAPA {
		return detectorID*channelsPerAPA + channel
	}
	return channel
}

// FilterTOT drops TPs with samples_over_threshold below cut, unless no TP
// has a positive value, in which case the input is returned unchanged.
func FilterTOT(tps []event.TriggerPrimitive, cut int64) []event.TriggerPrimitive {
	populated := false
	for i := range tps {
		if tps[i].SamplesOverThreshold > 0 {
			populated = true
			break
		}
	}
	if !populated {
		return tps
	}

	out := tps[:0:0]
	for _, tp := range tps {
		if tp.SamplesOverThreshold >= cut {
			out = append(out, tp)
		}
	}
	return out
}
