package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/ports"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

// Poller is the coordinator surface the API reads from and triggers.
type Poller interface {
	Snapshot() *domain.Snapshot
	Mode() string
	Refresh(ctx context.Context) error
	RefreshAccount(ctx context.Context) error
	RefreshUseHistory(ctx context.Context, period string) error
	RefreshFavoriteStation(ctx context.Context, stationID string) error
	RefreshStation(ctx context.Context, stationID string) error
	RefreshAllStations(ctx context.Context) error
}

// SnapshotLoader reads a snapshot published by another process.
type SnapshotLoader interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
}

// Pinger is a backing service with a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector reports whether a broker connection is up.
type Connector interface {
	IsConnected() bool
}

// Dependencies holds all services needed by HTTP handlers. Everything but
// one of Poller or Snapshots may be nil.
type Dependencies struct {
	Poller    Poller
	Snapshots SnapshotLoader
	Trips     *usecases.TripService
	Samples   ports.StationSampleRepository
	NATS      *nats.Conn
	DB        Pinger
	Cache     Pinger
	MQTT      Connector
}

// snapshot returns the live snapshot, or the cached one when this process
// does not poll.
func (d *Dependencies) snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if d.Poller != nil {
		if s := d.Poller.Snapshot(); s != nil {
			return s, nil
		}
		return nil, domain.ErrNoSnapshot
	}
	if d.Snapshots != nil {
		s, err := d.Snapshots.Load(ctx)
		if err != nil || s == nil {
			return nil, domain.ErrNoSnapshot
		}
		return s, nil
	}
	return nil, domain.ErrNoSnapshot
}
