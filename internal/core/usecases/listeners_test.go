package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

// --- Mock EntityPublisher ---

type mockEntityPub struct {
	published []domain.Entity
	removed   []string
}

func (m *mockEntityPub) PublishEntities(ctx context.Context, e []domain.Entity) error {
	m.published = e
	return nil
}

func (m *mockEntityPub) RemoveEntities(ctx context.Context, ids []string) error {
	m.removed = append(m.removed, ids...)
	return nil
}

// --- Mock EventPublisher ---

type mockEventPub struct {
	snapshots int
	changes   int
	trips     []string
	tripErr   error
}

func (m *mockEventPub) PublishSnapshot(ctx context.Context, s *domain.Snapshot) error {
	m.snapshots++
	return nil
}

func (m *mockEventPub) PublishSetChanges(ctx context.Context, c domain.SetChanges) error {
	m.changes++
	return nil
}

func (m *mockEventPub) PublishTrip(ctx context.Context, t *domain.TripRecord) error {
	m.trips = append(m.trips, t.Key)
	return m.tripErr
}

func (m *mockEventPub) PublishTripArchived(ctx context.Context, t *domain.TripRecord) error {
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	data map[string][]byte
	ttl  int
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// --- Mock StationSampleRepository ---

type mockSamples struct {
	batches [][]domain.StationSample
}

func (m *mockSamples) InsertBatch(ctx context.Context, s []domain.StationSample) error {
	m.batches = append(m.batches, s)
	return nil
}

func (m *mockSamples) History(ctx context.Context, id string, limit int) ([]domain.StationSample, error) {
	return nil, nil
}

func sampleSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Mode:             "cookie",
		ValidationStatus: domain.ValidationOK,
		UpdatedAt:        time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC),
		Favorites: []domain.Favorite{
			{StationID: "ST-102", StationName: "102. 망원역", Normal: ip(4), Sprout: ip(1)},
			{StationID: "ST-103", StationName: "103. 없음"},
		},
		Stations: []domain.Station{{StationID: "ST-105", BikesTotal: 3, BikesGeneral: 3}},
	}
}

func TestEntitySync_RemovesVanishedSets(t *testing.T) {
	pub := &mockEntityPub{}
	sync := usecases.NewEntitySync(pub)

	err := sync.OnSnapshot(context.Background(), sampleSnapshot(), domain.SetChanges{
		FavoritesRemoved: []string{"ST-1"},
		StationsRemoved:  []string{"ST-2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.removed) == 0 || pub.removed[0] != "seoulbike_fav_st_1_general" {
		t.Errorf("unexpected removed ids: %v", pub.removed)
	}
	if len(pub.published) == 0 {
		t.Error("expected entities published")
	}
}

func TestEventRelay(t *testing.T) {
	pub := &mockEventPub{tripErr: errors.New("nats down")}
	relay := usecases.NewEventRelay(pub)

	if err := relay.OnSnapshot(context.Background(), sampleSnapshot(), domain.SetChanges{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.snapshots != 1 || pub.changes != 0 {
		t.Errorf("expected snapshot only, got %d/%d", pub.snapshots, pub.changes)
	}

	err := relay.OnSnapshot(context.Background(), sampleSnapshot(), domain.SetChanges{
		NewTrips: []domain.TripRecord{{Key: "777"}},
	})
	if err == nil {
		t.Error("expected trip publish error to surface")
	}
	if pub.changes != 1 || len(pub.trips) != 1 {
		t.Errorf("expected changes and trip published, got %d/%v", pub.changes, pub.trips)
	}
}

func TestSnapshotCache_RoundTrip(t *testing.T) {
	cache := &mockCache{}
	sc := usecases.NewSnapshotCache(cache, 10*time.Minute)

	if err := sc.OnSnapshot(context.Background(), sampleSnapshot(), domain.SetChanges{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.ttl != 600 {
		t.Errorf("expected ttl 600, got %d", cache.ttl)
	}
	var raw map[string]any
	if err := json.Unmarshal(cache.data[usecases.SnapshotCacheKey], &raw); err != nil {
		t.Fatalf("cached value is not JSON: %v", err)
	}
	got, err := sc.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Favorites) != 2 || got.ValidationStatus != domain.ValidationOK {
		t.Errorf("unexpected cached snapshot: %+v", got)
	}
}

func TestStationRecorder(t *testing.T) {
	repo := &mockSamples{}
	rec := usecases.NewStationRecorder(repo)

	if err := rec.OnSnapshot(context.Background(), sampleSnapshot(), domain.SetChanges{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(repo.batches))
	}
	batch := repo.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected station + favorite with counts, got %d", len(batch))
	}
	if batch[1].Source != "favorite" || batch[1].BikesTotal != 5 {
		t.Errorf("unexpected favorite sample: %+v", batch[1])
	}

	degraded := sampleSnapshot()
	degraded.ValidationStatus = domain.ValidationLoginPage
	_ = rec.OnSnapshot(context.Background(), degraded, domain.SetChanges{})
	if len(repo.batches) != 1 {
		t.Error("degraded snapshots must not be archived")
	}
}

func TestTrackedCenter(t *testing.T) {
	home := domain.GeoPoint{Lat: 37.5, Lon: 127.0}
	lat, lon, bad := 37.6, 127.1, 200.0

	if c := usecases.TrackedCenter("t", false, nil, nil, home); c.Status != domain.CenterEntityNotFound || c.Point != home {
		t.Errorf("unreported: %+v", c)
	}
	if c := usecases.TrackedCenter("t", true, nil, nil, home); c.Status != domain.CenterNoCoords {
		t.Errorf("no coords: %+v", c)
	}
	if c := usecases.TrackedCenter("t", true, &lat, &bad, home); c.Status != domain.CenterInvalidCoords {
		t.Errorf("invalid: %+v", c)
	}
	if c := usecases.TrackedCenter("t", true, &lat, &lon, home); !c.OK() || c.Source != "t" {
		t.Errorf("ok: %+v", c)
	}
	if c := usecases.HomeCenter(domain.GeoPoint{}); c.Status != domain.CenterNotConfigured {
		t.Errorf("home unset: %+v", c)
	}
}
