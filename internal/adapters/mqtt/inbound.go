package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/seoulbike/internal/core/domain"
	"github.com/samirrijal/seoulbike/internal/core/projection"
	"github.com/samirrijal/seoulbike/internal/core/usecases"
)

// Dispatcher runs a refresh action.
type Dispatcher interface {
	Dispatch(ctx context.Context, action domain.RefreshAction) error
}

// ButtonRouter turns button presses into refresh actions.
type ButtonRouter struct {
	prefix   string
	entities func() []domain.Entity
	dispatch Dispatcher
	timeout  time.Duration
	logger   *slog.Logger
}

// NewButtonRouter creates a router. entities returns the currently projected
// entity set; presses on unknown ids are ignored.
func NewButtonRouter(opts Options, entities func() []domain.Entity, dispatch Dispatcher, logger *slog.Logger) *ButtonRouter {
	return &ButtonRouter{
		prefix:   orDefault(opts.TopicPrefix, defaultTopicPrefix),
		entities: entities,
		dispatch: dispatch,
		timeout:  2 * time.Minute,
		logger:   logger,
	}
}

// Register subscribes to every button's command topic.
func (r *ButtonRouter) Register(b broker) error {
	return b.Subscribe(PressWildcard(r.prefix), func(topic string, _ []byte) {
		action, ok := r.Resolve(topic)
		if !ok {
			return
		}
		// Refreshes can take a while; paho's router must not block on them.
		go r.run(action)
	})
}

// Resolve maps a press topic to the action of the pressed button.
func (r *ButtonRouter) Resolve(topic string) (domain.RefreshAction, bool) {
	id, ok := idFromPressTopic(r.prefix, topic)
	if !ok {
		return domain.RefreshAction{}, false
	}
	action, ok := projection.ActionForButton(r.entities(), id)
	if !ok {
		r.logger.Warn("press on unknown button", "entity", id)
	}
	return action, ok
}

func (r *ButtonRouter) run(action domain.RefreshAction) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.dispatch.Dispatch(ctx, action); err != nil {
		r.logger.Error("button refresh failed",
			"scope", action.Scope,
			"target", action.Target,
			"error", err,
		)
		return
	}
	r.logger.Info("button refresh done", "scope", action.Scope, "target", action.Target)
}

// locationReport is the payload on the location topic.
type locationReport struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// TrackedLocation implements ports.LocationSource from reports on an MQTT
// topic. Until the first report the home point is used.
type TrackedLocation struct {
	topic  string
	home   domain.GeoPoint
	logger *slog.Logger

	mu       sync.RWMutex
	reported bool
	lat, lon *float64
}

func NewTrackedLocation(topic string, home domain.GeoPoint, logger *slog.Logger) *TrackedLocation {
	return &TrackedLocation{topic: topic, home: home, logger: logger}
}

// Register subscribes to the location topic.
func (l *TrackedLocation) Register(b broker) error {
	return b.Subscribe(l.topic, func(_ string, payload []byte) {
		l.Handle(payload)
	})
}

// Handle records one report. An unparseable payload counts as a report
// without coordinates.
func (l *TrackedLocation) Handle(payload []byte) {
	var rep locationReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		l.logger.Warn("bad location payload", "topic", l.topic, "error", err)
		rep = locationReport{}
	}
	l.mu.Lock()
	l.reported = true
	l.lat, l.lon = rep.Latitude, rep.Longitude
	l.mu.Unlock()
}

func (l *TrackedLocation) Center(context.Context) (domain.Center, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return usecases.TrackedCenter(l.topic, l.reported, l.lat, l.lon, l.home), nil
}
