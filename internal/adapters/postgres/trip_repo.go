package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const tripColumns = `trip_key, period, COALESCE(history_id, ''), bike, rent_datetime, rent_station,
	return_datetime, return_station, distance_km, seen_at`

// TripRepo implements ports.TripRepository.
type TripRepo struct {
	db *DB
}

func NewTripRepo(db *DB) *TripRepo {
	return &TripRepo{db: db}
}

// Upsert inserts a trip once. Later sightings of the same key are ignored.
func (r *TripRepo) Upsert(ctx context.Context, trip *domain.TripRecord) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trips (trip_key, period, history_id, bike, rent_datetime, rent_station,
		                   return_datetime, return_station, distance_km, seen_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trip_key) DO NOTHING
	`, trip.Key, trip.Period, trip.HistoryID, trip.Bike, trip.RentDatetime, trip.RentStation,
		trip.ReturnDatetime, trip.ReturnStation, trip.DistanceKM, trip.SeenAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TripRepo) GetByKey(ctx context.Context, key string) (*domain.TripRecord, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE trip_key = $1`, key)
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TripRepo) List(ctx context.Context, filter domain.TripFilter) ([]domain.TripRecord, int, error) {
	countSQL, countArgs, err := buildCountQuery(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.db.Pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listSQL, listArgs, err := buildListQuery(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.db.Pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var trips []domain.TripRecord
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, 0, err
		}
		trips = append(trips, *t)
	}
	return trips, total, rows.Err()
}

func applyTripFilter(b sq.SelectBuilder, f domain.TripFilter) sq.SelectBuilder {
	if f.Bike != "" {
		b = b.Where(sq.Eq{"bike": f.Bike})
	}
	if f.Period != "" {
		b = b.Where(sq.Eq{"period": f.Period})
	}
	if f.Since != nil {
		b = b.Where(sq.GtOrEq{"seen_at": f.Since.UTC()})
	}
	return b
}

func buildListQuery(f domain.TripFilter) (string, []any, error) {
	b := applyTripFilter(psql.Select(tripColumns).From("trips"), f).
		OrderBy("seen_at DESC", "trip_key")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return b.ToSql()
}

func buildCountQuery(f domain.TripFilter) (string, []any, error) {
	return applyTripFilter(psql.Select("COUNT(*)").From("trips"), f).ToSql()
}

func scanTrip(row pgx.Row) (*domain.TripRecord, error) {
	var t domain.TripRecord
	err := row.Scan(&t.Key, &t.Period, &t.HistoryID, &t.Bike, &t.RentDatetime, &t.RentStation,
		&t.ReturnDatetime, &t.ReturnStation, &t.DistanceKM, &t.SeenAt)
	if err != nil {
		return nil, err
	}
	t.SeenAt = t.SeenAt.UTC()
	return &t, nil
}
