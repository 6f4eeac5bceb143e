package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

// TripActivities holds the activity implementations for the trip archive workflow.
type TripActivities struct {
	Trips *usecases.TripService
}

// ArchiveTrip stores a trip and reports whether it was new.
func (a *TripActivities) ArchiveTrip(ctx context.Context, trip domain.TripRecord) (bool, error) {
	inserted, err := a.Trips.Archive(ctx, &trip)
	if err != nil {
		return false, fmt.Errorf("archive trip: %w", err)
	}
	if !inserted {
		slog.Debug("trip already archived", "key", trip.Key)
	}
	return inserted, nil
}

// NotifyArchived announces a newly archived trip on the broker.
func (a *TripActivities) NotifyArchived(ctx context.Context, trip domain.TripRecord) error {
	if err := a.Trips.NotifyArchived(ctx, &trip); err != nil {
		return fmt.Errorf("notify archived %s: %w", trip.Key, err)
	}
	return nil
}
