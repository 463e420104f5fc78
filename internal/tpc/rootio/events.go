package rootio

import (
	"fmt"
	"path"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
)

// WriteEvents writes events as input trees with the canonical branch names,
// so that Open reads them back. A stream is written when its tree name is
// set and at least one event carries it. Tree names may contain a
// directory, e.g. "triggerAnaDumpTPs/mctruths".
func WriteEvents(filePath string, names TreeNames, events []*ingest.EventRecords) error {
	f, err := groot.Create(filePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", filePath, err)
	}

	var present ingest.Stream
	for _, ev := range events {
		present |= ev.Present
	}

	writers := []struct {
		bit   ingest.Stream
		name  string
		write func(riofs.Directory, string) error
	}{
		{ingest.StreamTPs, names.TPs, func(d riofs.Directory, n string) error { return writeTPs(d, n, events) }},
		{ingest.StreamParticles, names.Particles, func(d riofs.Directory, n string) error { return writeParticles(d, n, events) }},
		{ingest.StreamTruth, names.Truth, func(d riofs.Directory, n string) error { return writeTruths(d, n, events) }},
		{ingest.StreamDeposits, names.Deposits, func(d riofs.Directory, n string) error { return writeDeposits(d, n, events) }},
	}
	for _, w := range writers {
		if w.name == "" || present&w.bit == 0 {
			continue
		}
		dir, base, err := treeDir(f, w.name)
		if err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", filePath, err)
		}
		if err := w.write(dir, base); err != nil {
			f.Close()
			return fmt.Errorf("%s: tree %s: %w", filePath, w.name, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filePath, err)
	}
	return nil
}

// treeDir returns the directory holding name, creating it when needed, and
// the base tree name.
func treeDir(f *riofs.File, name string) (riofs.Directory, string, error) {
	root := riofs.Dir(f)
	parent, base := path.Split(name)
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return root, base, nil
	}
	if obj, err := root.Get(parent); err == nil {
		d, ok := obj.(riofs.Directory)
		if !ok {
			return nil, "", fmt.Errorf("%s is a %T, not a directory", parent, obj)
		}
		return d, base, nil
	}
	d, err := root.Mkdir(parent)
	if err != nil {
		return nil, "", fmt.Errorf("mkdir %s: %w", parent, err)
	}
	return d, base, nil
}

// fill writes one entry per call of next until it reports false.
func fill(dir riofs.Directory, name string, vars []rtree.WriteVar, next func() bool) error {
	w, err := rtree.NewWriter(dir, name, vars)
	if err != nil {
		return err
	}
	for next() {
		if _, err := w.Write(); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func writeTPs(dir riofs.Directory, name string, events []*ingest.EventRecords) error {
	var (
		ev, tstart, tot, tpeak, sot, stp, integral, peak int64
		version                                          int32
		det, ch                                          uint64
	)
	vars := []rtree.WriteVar{
		{Name: "event", Value: &ev},
		{Name: "version", Value: &version},
		{Name: "detid", Value: &det},
		{Name: "channel", Value: &ch},
		{Name: "time_start", Value: &tstart},
		{Name: "time_over_threshold", Value: &tot},
		{Name: "time_peak", Value: &tpeak},
		{Name: "samples_over_threshold", Value: &sot},
		{Name: "samples_to_peak", Value: &stp},
		{Name: "adc_integral", Value: &integral},
		{Name: "adc_peak", Value: &peak},
	}
	var rows []ingest.TPRecord
	for _, e := range events {
		rows = append(rows, e.TPs...)
	}
	i := 0
	return fill(dir, name, vars, func() bool {
		if i >= len(rows) {
			return false
		}
		r := rows[i]
		i++
		ev, version, det, ch, tstart = r.Event, int32(r.Version), r.DetectorID, r.Channel, r.TimeStart
		tot, tpeak, sot, stp = r.TimeOverThreshold, r.TimePeak, r.SamplesOverThreshold, r.SamplesToPeak
		integral, peak = r.ADCIntegral, r.ADCPeak
		return true
	})
}

func writeParticles(dir riofs.Directory, name string, events []*ingest.EventRecords) error {
	var (
		ev, pdg, track, truth, status int64
		x, y, z, px, py, pz, energy   float64
		generator, process            string
	)
	vars := []rtree.WriteVar{
		{Name: "event", Value: &ev},
		{Name: "x", Value: &x},
		{Name: "y", Value: &y},
		{Name: "z", Value: &z},
		{Name: "Px", Value: &px},
		{Name: "Py", Value: &py},
		{Name: "Pz", Value: &pz},
		{Name: "energy", Value: &energy},
		{Name: "generator_name", Value: &generator},
		{Name: "pdg", Value: &pdg},
		{Name: "process", Value: &process},
		{Name: "track_id", Value: &track},
		{Name: "truth_id", Value: &truth},
		{Name: "status_code", Value: &status},
	}
	var rows []ingest.ParticleRecord
	for _, e := range events {
		rows = append(rows, e.Particles...)
	}
	i := 0
	return fill(dir, name, vars, func() bool {
		if i >= len(rows) {
			return false
		}
		r := rows[i]
		i++
		ev, x, y, z = r.Event, r.X, r.Y, r.Z
		px, py, pz, energy = r.Px, r.Py, r.Pz, r.Energy
		generator, pdg, process = r.Generator, r.PDG, r.Process
		track, truth, status = r.TrackID, r.TruthID, r.StatusCode
		return true
	})
}

func writeTruths(dir riofs.Directory, name string, events []*ingest.EventRecords) error {
	var (
		ev, truth              int64
		generator, interaction string
	)
	vars := []rtree.WriteVar{
		{Name: "event", Value: &ev},
		{Name: "truth_id", Value: &truth},
		{Name: "generator_name", Value: &generator},
		{Name: "interaction", Value: &interaction},
	}
	var rows []ingest.TruthRecord
	for _, e := range events {
		rows = append(rows, e.Truths...)
	}
	i := 0
	return fill(dir, name, vars, func() bool {
		if i >= len(rows) {
			return false
		}
		r := rows[i]
		i++
		ev, truth, generator, interaction = r.Event, r.TruthID, r.Generator, r.Interaction
		return true
	})
}

func writeDeposits(dir riofs.Directory, name string, events []*ingest.EventRecords) error {
	var (
		ev, ts, track int64
		ch            uint64
	)
	vars := []rtree.WriteVar{
		{Name: "event", Value: &ev},
		{Name: "channel", Value: &ch},
		{Name: "timestamp", Value: &ts},
		{Name: "track_id", Value: &track},
	}
	var rows []ingest.DepositRecord
	for _, e := range events {
		rows = append(rows, e.Deposits...)
	}
	i := 0
	return fill(dir, name, vars, func() bool {
		if i >= len(rows) {
			return false
		}
		r := rows[i]
		i++
		ev, ch, ts, track = r.Event, r.Channel, r.Timestamp, r.TrackID
		return true
	})
}
