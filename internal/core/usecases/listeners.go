package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
	"github.com/samirrijal/seoulbike/internal/core/projection"
	"github.com/samirrijal/seoulbike/internal/pkg/metrics"
)

// SnapshotCacheKey is where the latest snapshot is cached.
const SnapshotCacheKey = "seoulbike:snapshot"

// EntitySync keeps the home-automation entity set in step with snapshots.
type EntitySync struct {
	pub ports.EntityPublisher
}

// NewEntitySync creates a new EntitySync.
func NewEntitySync(pub ports.EntityPublisher) *EntitySync {
	return &EntitySync{pub: pub}
}

// OnSnapshot removes entities of vanished favorites and stations, then
// publishes the full projection.
func (s *EntitySync) OnSnapshot(ctx context.Context, snap *domain.Snapshot, changes domain.SetChanges) error {
	if removed := projection.RemovedIDs(changes); len(removed) > 0 {
		if err := s.pub.RemoveEntities(ctx, removed); err != nil {
			return fmt.Errorf("remove entities: %w", err)
		}
		metrics.EntitiesPublished.WithLabelValues("remove").Add(float64(len(removed)))
	}
	entities := projection.Build(snap)
	if err := s.pub.PublishEntities(ctx, entities); err != nil {
		return fmt.Errorf("publish entities: %w", err)
	}
	metrics.EntitiesPublished.WithLabelValues("publish").Add(float64(len(entities)))
	return nil
}

// EventRelay forwards snapshots, set changes and new trips to the broker.
type EventRelay struct {
	pub ports.EventPublisher
}

// NewEventRelay creates a new EventRelay.
func NewEventRelay(pub ports.EventPublisher) *EventRelay {
	return &EventRelay{pub: pub}
}

func (r *EventRelay) OnSnapshot(ctx context.Context, snap *domain.Snapshot, changes domain.SetChanges) error {
	var errs []error
	if err := r.pub.PublishSnapshot(ctx, snap); err != nil {
		errs = append(errs, fmt.Errorf("publish snapshot: %w", err))
	}
	if !changes.Empty() {
		if err := r.pub.PublishSetChanges(ctx, changes); err != nil {
			errs = append(errs, fmt.Errorf("publish changes: %w", err))
		}
	}
	for i := range changes.NewTrips {
		if err := r.pub.PublishTrip(ctx, &changes.NewTrips[i]); err != nil {
			errs = append(errs, fmt.Errorf("publish trip %s: %w", changes.NewTrips[i].Key, err))
		}
	}
	return errors.Join(errs...)
}

// SnapshotCache writes every snapshot to the cache so other processes can
// serve it.
type SnapshotCache struct {
	cache ports.CacheService
	ttl   time.Duration
}

// NewSnapshotCache creates a new SnapshotCache. A zero ttl keeps entries
// until overwritten.
func NewSnapshotCache(cache ports.CacheService, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{cache: cache, ttl: ttl}
}

func (c *SnapshotCache) OnSnapshot(ctx context.Context, snap *domain.Snapshot, _ domain.SetChanges) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.cache.Set(ctx, SnapshotCacheKey, data, int(c.ttl.Seconds()))
}

// Load reads the cached snapshot.
func (c *SnapshotCache) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := c.cache.Get(ctx, SnapshotCacheKey)
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

// StationRecorder archives station counts of authenticated snapshots.
type StationRecorder struct {
	samples ports.StationSampleRepository
}

// NewStationRecorder creates a new StationRecorder.
func NewStationRecorder(samples ports.StationSampleRepository) *StationRecorder {
	return &StationRecorder{samples: samples}
}

func (r *StationRecorder) OnSnapshot(ctx context.Context, snap *domain.Snapshot, _ domain.SetChanges) error {
	if snap.Degraded() {
		return nil
	}
	samples := StationSamples(snap)
	if len(samples) == 0 {
		return nil
	}
	return r.samples.InsertBatch(ctx, samples)
}

// StationSamples flattens monitored stations and favorites with counts into
// archive samples.
func StationSamples(snap *domain.Snapshot) []domain.StationSample {
	at := snap.UpdatedAt.UTC()
	out := make([]domain.StationSample, 0, len(snap.Stations)+len(snap.Favorites))
	for _, s := range snap.Stations {
		out = append(out, domain.StationSample{
			StationID:    s.StationID,
			StationNo:    s.StationNo,
			Source:       "station",
			BikesTotal:   s.BikesTotal,
			BikesGeneral: s.BikesGeneral,
			BikesSprout:  s.BikesSprout,
			BikesRepair:  s.BikesRepair,
			SampledAt:    at,
		})
	}
	for _, f := range snap.Favorites {
		if f.Normal == nil && f.Total == nil {
			continue
		}
		general, sprout := intOr(f.Normal, 0), intOr(f.Sprout, 0)
		out = append(out, domain.StationSample{
			StationID:    f.StationID,
			StationNo:    f.StationNo,
			Source:       "favorite",
			BikesTotal:   intOr(f.Total, general+sprout),
			BikesGeneral: general,
			BikesSprout:  sprout,
			BikesRepair:  intOr(f.Repair, 0),
			SampledAt:    at,
		})
	}
	return out
}
