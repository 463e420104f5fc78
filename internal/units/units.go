// Package units provides the time and charge conversions shared by the TPC
// packages.
//
// Timestamps from the simulation are in TDC ticks and readout timestamps are
// in TPC ticks. Raw TDC values are frequently stored in 16-bit columns; every
// conversion here widens to int64 before multiplying so that, for example,
// 4096 TDC × 32 yields 131072 and never wraps to zero.
package units

import "math"

// TDCToTPC converts a TDC timestamp to TPC ticks. The argument is already
// int64, so callers holding narrower integers must widen them before the call
// rather than multiplying in their own type.
func TDCToTPC(tdc int64, conversion int64) int64 {
	return tdc * conversion
}

// TPCToTDC converts TPC ticks back to TDC ticks, truncating toward zero.
func TPCToTDC(tpc int64, conversion int64) int64 {
	if conversion == 0 {
		return 0
	}
	return tpc / conversion
}

// TicksToCM converts a drift time in TPC ticks to a drift distance in cm.
func TicksToCM(ticks int64, tickCM float64) float64 {
	return float64(ticks) * tickCM
}

// CMToTicks converts a drift distance in cm to TPC ticks, rounding up so that
// a window built from the result always covers the distance.
func CMToTicks(cm float64, tickCM float64) int64 {
	if tickCM <= 0 {
		return 0
	}
	return int64(math.Ceil(cm / tickCM))
}

// ADCToMeV converts an ADC integral to deposited energy given the
// calibration factor in ADC per MeV.
func ADCToMeV(adc int64, adcPerMeV float64) float64 {
	if adcPerMeV <= 0 {
		return 0
	}
	return float64(adc) / adcPerMeV
}
