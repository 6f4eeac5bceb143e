package ports

import (
	"context"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// SiteClient is the scrape-mode view of the member website.
type SiteClient interface {
	SetCookie(cookie string)
	Cookie() string
	Login(ctx context.Context, username, password string) (string, error)
	LastMeta() domain.RequestMeta

	FetchRentStatus(ctx context.Context) (domain.RentStatus, error)
	FetchUserStatus(ctx context.Context) (map[string]any, error)
	FetchReconsentStatus(ctx context.Context) (map[string]any, error)
	FetchVoucherInfo(ctx context.Context) (domain.AccountState, error)
	FetchLeftPageHTML(ctx context.Context) (string, error)
	FetchUseHistoryHTML(ctx context.Context, period, baseHTML string) (string, error)
	FetchMoveRoute(ctx context.Context, historyID string) (map[string]any, error)
	FetchFavoritesHTML(ctx context.Context) (string, error)
	FetchStationRealtimeAll(ctx context.Context) ([]domain.StationStatus, error)
	FetchStationStatus(ctx context.Context, stationID, stationNo string) (domain.StationStatus, error)
	InvalidateRealtime()
}

// StationSource lists every station through the open-data API.
type StationSource interface {
	FetchAll(ctx context.Context) ([]domain.StationStatus, error)
	LastMeta() domain.RequestMeta
}

// CookieStore persists the session cookie across restarts.
type CookieStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, cookie string) error
}

// LocationSource yields the reference point for nearby ranking.
type LocationSource interface {
	Center(ctx context.Context) (domain.Center, error)
}

// SnapshotListener is notified after every published snapshot.
type SnapshotListener interface {
	OnSnapshot(ctx context.Context, snap *domain.Snapshot, changes domain.SetChanges) error
}

// EntityPublisher exposes projected entities to the home-automation host.
type EntityPublisher interface {
	PublishEntities(ctx context.Context, entities []domain.Entity) error
	RemoveEntities(ctx context.Context, ids []string) error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error
	PublishSetChanges(ctx context.Context, changes domain.SetChanges) error
	PublishTrip(ctx context.Context, trip *domain.TripRecord) error
	PublishTripArchived(ctx context.Context, trip *domain.TripRecord) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeTrips(ctx context.Context, handler func(ctx context.Context, trip *domain.TripRecord) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
