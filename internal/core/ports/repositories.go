package ports

import (
	"context"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// TripRepository archives trips seen in the usage history.
type TripRepository interface {
	// Upsert stores a trip; it reports false when the key already existed.
	Upsert(ctx context.Context, trip *domain.TripRecord) (bool, error)
	GetByKey(ctx context.Context, key string) (*domain.TripRecord, error)
	List(ctx context.Context, filter domain.TripFilter) ([]domain.TripRecord, int, error)
}

// StationSampleRepository archives station count observations.
type StationSampleRepository interface {
	InsertBatch(ctx context.Context, samples []domain.StationSample) error
	History(ctx context.Context, stationID string, limit int) ([]domain.StationSample, error)
}
