package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
)

// TripService handles the trip archive.
type TripService struct {
	trips     ports.TripRepository
	publisher ports.EventPublisher
}

// NewTripService creates a new TripService. publisher may be nil.
func NewTripService(trips ports.TripRepository, publisher ports.EventPublisher) *TripService {
	return &TripService{trips: trips, publisher: publisher}
}

// Archive stores a trip. inserted is false when the key was already known.
func (s *TripService) Archive(ctx context.Context, trip *domain.TripRecord) (bool, error) {
	if trip.Key == "" {
		return false, fmt.Errorf("trip has no key")
	}
	inserted, err := s.trips.Upsert(ctx, trip)
	if err != nil {
		return false, fmt.Errorf("upsert trip %s: %w", trip.Key, err)
	}
	return inserted, nil
}

// NotifyArchived announces an archived trip.
func (s *TripService) NotifyArchived(ctx context.Context, trip *domain.TripRecord) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishTripArchived(ctx, trip)
}

// Get returns one archived trip by key.
func (s *TripService) Get(ctx context.Context, key string) (*domain.TripRecord, error) {
	return s.trips.GetByKey(ctx, key)
}

// List returns a page of archived trips, newest first, and the total count.
func (s *TripService) List(ctx context.Context, filter domain.TripFilter) ([]domain.TripRecord, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.trips.List(ctx, filter)
}
