package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// StationSampleRepo implements ports.StationSampleRepository.
type StationSampleRepo struct {
	db *DB
}

func NewStationSampleRepo(db *DB) *StationSampleRepo {
	return &StationSampleRepo{db: db}
}

// InsertBatch writes all samples in one round trip.
func (r *StationSampleRepo) InsertBatch(ctx context.Context, samples []domain.StationSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(`
			INSERT INTO station_samples (station_id, station_no, source, bikes_total, bikes_general,
			                             bikes_sprout, bikes_repair, sampled_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
			ON CONFLICT (station_id, source, sampled_at) DO NOTHING
		`, s.StationID, s.StationNo, s.Source, s.BikesTotal, s.BikesGeneral, s.BikesSprout, s.BikesRepair, s.SampledAt)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range samples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert sample %s: %w", samples[i].StationID, err)
		}
	}
	return nil
}

// History returns the latest samples of one station, newest first.
func (r *StationSampleRepo) History(ctx context.Context, stationID string, limit int) ([]domain.StationSample, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT station_id, COALESCE(station_no, ''), source, bikes_total, bikes_general,
		       bikes_sprout, bikes_repair, sampled_at
		FROM station_samples
		WHERE station_id = $1
		ORDER BY sampled_at DESC
		LIMIT $2
	`, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StationSample
	for rows.Next() {
		var s domain.StationSample
		if err := rows.Scan(&s.StationID, &s.StationNo, &s.Source, &s.BikesTotal, &s.BikesGeneral,
			&s.BikesSprout, &s.BikesRepair, &s.SampledAt); err != nil {
			return nil, err
		}
		s.SampledAt = s.SampledAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
