package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
)

// StoredCluster is a cluster record with its database identity.
type StoredCluster struct {
	ClusterID int64  `json:"cluster_id"`
	RunID     string `json:"run_id"`
	record.ClusterRecord
}

// ClusterFilter selects clusters in ListClusters. Zero fields match all.
type ClusterFilter struct {
	RunID string
	Event *int64
	View  string
	Label string
	Limit int
	// AfterID returns only clusters with a larger cluster_id, for paging.
	AfterID int64
}

const clusterColumns = `cluster_id, run_id, event, apa, view, three_view, n_tps,
	true_dir_x, true_dir_y, true_dir_z, true_pos_x, true_pos_y, true_pos_z,
	true_neutrino_energy, true_particle_energy, true_label, true_interaction,
	reco_pos_x, reco_pos_y, reco_pos_z, min_distance_from_true_pos,
	supernova_tp_fraction, generator_tp_fraction,
	total_charge, total_energy, conversion_factor`

// InsertClusters stores the records of one event in a single transaction
// and returns their cluster IDs in input order.
func (s *Store) InsertClusters(ctx context.Context, runID string, event int64, recs []record.ClusterRecord) ([]int64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	clusterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clusters (
			run_id, event, apa, view, three_view, n_tps,
			true_dir_x, true_dir_y, true_dir_z, true_pos_x, true_pos_y, true_pos_z,
			true_neutrino_energy, true_particle_energy, true_label, true_interaction,
			reco_pos_x, reco_pos_y, reco_pos_z, min_distance_from_true_pos,
			supernova_tp_fraction, generator_tp_fraction,
			total_charge, total_energy, conversion_factor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare cluster insert: %w", err)
	}
	defer clusterStmt.Close()

	tpStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cluster_tps (
			cluster_id, idx, detector_channel, detector, samples_over_threshold,
			time_start, samples_to_peak, adc_peak, adc_integral
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare tp insert: %w", err)
	}
	defer tpStmt.Close()

	ids := make([]int64, len(recs))
	for i, r := range recs {
		res, err := clusterStmt.ExecContext(ctx,
			runID, event, int64(r.APA), r.View, r.ThreeView, r.NTPs,
			r.TrueDirX, r.TrueDirY, r.TrueDirZ, r.TruePosX, r.TruePosY, r.TruePosZ,
			r.TrueNeutrinoEnergy, r.TrueParticleEnergy, r.TrueLabel, r.TrueInteraction,
			r.RecoPosX, r.RecoPosY, r.RecoPosZ, r.MinDistanceFromTruePos,
			r.SupernovaTPFraction, r.GeneratorTPFraction,
			r.TotalCharge, r.TotalEnergy, r.ConversionFactor,
		)
		if err != nil {
			return nil, fmt.Errorf("insert cluster %d of event %d: %w", i, event, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("cluster id: %w", err)
		}
		ids[i] = id

		for k := range r.TPTimeStart {
			if _, err := tpStmt.ExecContext(ctx, id, k,
				int64(r.TPDetectorChannel[k]), int64(r.TPDetector[k]), r.TPSamplesOverThreshold[k],
				r.TPTimeStart[k], r.TPSamplesToPeak[k], r.TPADCPeak[k], r.TPADCIntegral[k],
			); err != nil {
				return nil, fmt.Errorf("insert tp %d of cluster %d: %w", k, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event %d: %w", event, err)
	}
	return ids, nil
}

// InsertMatches stores the three-view matches of one event. ids maps the
// record indexes used by the matches to cluster IDs, as returned by
// InsertClusters for the same event.
func (s *Store) InsertMatches(ctx context.Context, runID string, event int64, matches []record.MatchRecord, ids []int64) error {
	if len(matches) == 0 {
		return nil
	}
	lookup := func(i int) (int64, error) {
		if i < 0 || i >= len(ids) {
			return 0, fmt.Errorf("match references record %d of %d", i, len(ids))
		}
		return ids[i], nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range matches {
		var cid [4]int64
		for j, idx := range []int{m.U, m.V, m.X, m.Joined} {
			if cid[j], err = lookup(idx); err != nil {
				return fmt.Errorf("event %d: %w", event, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matches (
				run_id, event, apa, u_cluster_id, v_cluster_id, x_cluster_id,
				joined_cluster_id, y_u, y_v
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, event, int64(m.APA), cid[0], cid[1], cid[2], cid[3], m.YU, m.YV,
		); err != nil {
			return fmt.Errorf("insert match of event %d: %w", event, err)
		}
	}
	return tx.Commit()
}

// ListClusters returns the clusters matching f ordered by cluster_id, with
// their member TPs.
func (s *Store) ListClusters(ctx context.Context, f ClusterFilter) ([]*StoredCluster, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Event != nil {
		where = append(where, "event = ?")
		args = append(args, *f.Event)
	}
	if f.View != "" {
		where = append(where, "view = ?")
		args = append(args, f.View)
	}
	if f.Label != "" {
		where = append(where, "true_label = ?")
		args = append(args, f.Label)
	}
	if f.AfterID > 0 {
		where = append(where, "cluster_id > ?")
		args = append(args, f.AfterID)
	}

	q := "SELECT " + clusterColumns + " FROM clusters"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY cluster_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	var out []*StoredCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	// The pool holds one connection; release it before loading the TPs.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		if err := s.loadTPs(ctx, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanCluster(row scanner) (*StoredCluster, error) {
	var (
		c   StoredCluster
		apa int64
	)
	r := &c.ClusterRecord
	err := row.Scan(
		&c.ClusterID, &c.RunID, &r.Event, &apa, &r.View, &r.ThreeView, &r.NTPs,
		&r.TrueDirX, &r.TrueDirY, &r.TrueDirZ, &r.TruePosX, &r.TruePosY, &r.TruePosZ,
		&r.TrueNeutrinoEnergy, &r.TrueParticleEnergy, &r.TrueLabel, &r.TrueInteraction,
		&r.RecoPosX, &r.RecoPosY, &r.RecoPosZ, &r.MinDistanceFromTruePos,
		&r.SupernovaTPFraction, &r.GeneratorTPFraction,
		&r.TotalCharge, &r.TotalEnergy, &r.ConversionFactor,
	)
	if err != nil {
		return nil, fmt.Errorf("scan cluster: %w", err)
	}
	r.APA = uint64(apa)
	return &c, nil
}

func (s *Store) loadTPs(ctx context.Context, c *StoredCluster) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT detector_channel, detector, samples_over_threshold, time_start,
		       samples_to_peak, adc_peak, adc_integral
		FROM cluster_tps WHERE cluster_id = ? ORDER BY idx`, c.ClusterID)
	if err != nil {
		return fmt.Errorf("query tps of cluster %d: %w", c.ClusterID, err)
	}
	defer rows.Close()

	r := &c.ClusterRecord
	r.TPDetectorChannel = make([]uint64, 0, r.NTPs)
	r.TPDetector = make([]uint64, 0, r.NTPs)
	r.TPSamplesOverThreshold = make([]int64, 0, r.NTPs)
	r.TPTimeStart = make([]int64, 0, r.NTPs)
	r.TPSamplesToPeak = make([]int64, 0, r.NTPs)
	r.TPADCPeak = make([]int64, 0, r.NTPs)
	r.TPADCIntegral = make([]int64, 0, r.NTPs)
	for rows.Next() {
		var ch, det, sot, t, stp, peak, integral int64
		if err := rows.Scan(&ch, &det, &sot, &t, &stp, &peak, &integral); err != nil {
			return fmt.Errorf("scan tp of cluster %d: %w", c.ClusterID, err)
		}
		r.TPDetectorChannel = append(r.TPDetectorChannel, uint64(ch))
		r.TPDetector = append(r.TPDetector, uint64(det))
		r.TPSamplesOverThreshold = append(r.TPSamplesOverThreshold, sot)
		r.TPTimeStart = append(r.TPTimeStart, t)
		r.TPSamplesToPeak = append(r.TPSamplesToPeak, stp)
		r.TPADCPeak = append(r.TPADCPeak, peak)
		r.TPADCIntegral = append(r.TPADCIntegral, integral)
	}
	return rows.Err()
}

// StoredMatch is a match row.
type StoredMatch struct {
	MatchID         int64   `json:"match_id"`
	RunID           string  `json:"run_id"`
	Event           int64   `json:"event"`
	APA             uint64  `json:"apa"`
	UClusterID      int64   `json:"u_cluster_id"`
	VClusterID      int64   `json:"v_cluster_id"`
	XClusterID      int64   `json:"x_cluster_id"`
	JoinedClusterID int64   `json:"joined_cluster_id"`
	YU              float64 `json:"y_u"`
	YV              float64 `json:"y_v"`
}

// ListMatches returns the matches of a run, optionally for one event.
func (s *Store) ListMatches(ctx context.Context, runID string, event *int64) ([]*StoredMatch, error) {
	q := `SELECT match_id, run_id, event, apa, u_cluster_id, v_cluster_id, x_cluster_id,
		joined_cluster_id, y_u, y_v FROM matches WHERE run_id = ?`
	args := []any{runID}
	if event != nil {
		q += " AND event = ?"
		args = append(args, *event)
	}
	q += " ORDER BY match_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []*StoredMatch
	for rows.Next() {
		var (
			m   StoredMatch
			apa int64
		)
		if err := rows.Scan(&m.MatchID, &m.RunID, &m.Event, &apa, &m.UClusterID, &m.VClusterID,
			&m.XClusterID, &m.JoinedClusterID, &m.YU, &m.YV); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.APA = uint64(apa)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountClusters returns the number of clusters per view for a run.
func (s *Store) CountClusters(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT view, COUNT(*) FROM clusters WHERE run_id = ? GROUP BY view`, runID)
	if err != nil {
		return nil, fmt.Errorf("count clusters: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			view string
			n    int
		)
		if err := rows.Scan(&view, &n); err != nil {
			return nil, err
		}
		out[view] = n
	}
	return out, rows.Err()
}

