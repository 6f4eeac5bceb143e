package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// Subjects.
const (
	SubjectSnapshot     = "seoulbike.snapshot"
	SubjectChanges      = "seoulbike.changes"
	SubjectTripPrefix   = "seoulbike.trip."
	SubjectTripArchived = "seoulbike.archive.trip"
	SubjectAll          = "seoulbike.>"
)

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// TripSubject is the subject a trip event is published on.
func TripSubject(key string) string {
	return SubjectTripPrefix + subjectToken.Replace(key)
}

// Streams returns the JetStream streams the service relies on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      "SEOULBIKE_SNAPSHOTS",
			Subjects:  []string{SubjectSnapshot, SubjectChanges},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			MaxMsgs:   1000,
			Storage:   nats.FileStorage,
		},
		{
			Name:       "SEOULBIKE_TRIPS",
			Subjects:   []string{SubjectTripPrefix + ">"},
			Retention:  nats.WorkQueuePolicy,
			MaxAge:     7 * 24 * time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 24 * time.Hour,
		},
		{
			Name:      "SEOULBIKE_ARCHIVE",
			Subjects:  []string{"seoulbike.archive.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) publishJSON(ctx context.Context, subject string, v any, opts ...nats.PubOpt) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, append(opts, nats.Context(ctx))...)
	return err
}

func (p *Publisher) PublishSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	return p.publishJSON(ctx, SubjectSnapshot, snap)
}

func (p *Publisher) PublishSetChanges(ctx context.Context, changes domain.SetChanges) error {
	return p.publishJSON(ctx, SubjectChanges, changes)
}

// PublishTrip publishes a newly seen trip. The trip key is the JetStream
// message id, so repeats inside the duplicate window are dropped.
func (p *Publisher) PublishTrip(ctx context.Context, trip *domain.TripRecord) error {
	return p.publishJSON(ctx, TripSubject(trip.Key), trip, nats.MsgId(trip.Key))
}

func (p *Publisher) PublishTripArchived(ctx context.Context, trip *domain.TripRecord) error {
	return p.publishJSON(ctx, SubjectTripArchived, trip)
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("seoulbike"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
