package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadPress   = "PRESS"
)

// discoveryConfig is the retained discovery document of one entity.
type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id"`
	StateTopic        string          `json:"state_topic,omitempty"`
	AttributesTopic   string          `json:"json_attributes_topic,omitempty"`
	CommandTopic      string          `json:"command_topic,omitempty"`
	PayloadPress      string          `json:"payload_press,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	Availability      []availability  `json:"availability"`
	AvailabilityMode  string          `json:"availability_mode"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	EntityCategory    string          `json:"entity_category,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type availability struct {
	Topic string `json:"topic"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// EntityPublisher implements ports.EntityPublisher over MQTT discovery.
type EntityPublisher struct {
	b               broker
	topicPrefix     string
	discoveryPrefix string

	mu    sync.Mutex
	kinds map[string]domain.EntityKind // id -> kind of every announced entity
	sent  map[string]string            // id -> last discovery config
}

func NewEntityPublisher(b broker, opts Options) *EntityPublisher {
	return &EntityPublisher{
		b:               b,
		topicPrefix:     orDefault(opts.TopicPrefix, defaultTopicPrefix),
		discoveryPrefix: orDefault(opts.DiscoveryPrefix, defaultDiscoveryPrefix),
		kinds:           make(map[string]domain.EntityKind),
		sent:            make(map[string]string),
	}
}

func (p *EntityPublisher) config(e domain.Entity) discoveryConfig {
	cfg := discoveryConfig{
		Name:     e.Name,
		UniqueID: e.ID,
		ObjectID: e.ID,
		Availability: []availability{
			{Topic: StatusTopic(p.topicPrefix)},
			{Topic: AvailabilityTopic(p.topicPrefix, e.ID)},
		},
		AvailabilityMode:  "all",
		UnitOfMeasurement: e.Unit,
		DeviceClass:       e.DeviceClass,
		StateClass:        e.StateClass,
		Icon:              e.Icon,
		Device: discoveryDevice{
			Identifiers:  []string{e.Device},
			Name:         e.DeviceName,
			Manufacturer: "Seoul Bike",
			Model:        string(e.Scope),
		},
	}
	if e.Diagnostic {
		cfg.EntityCategory = "diagnostic"
	}
	switch e.Kind {
	case domain.KindButton:
		cfg.CommandTopic = PressTopic(p.topicPrefix, e.ID)
		cfg.PayloadPress = payloadPress
	case domain.KindBinarySensor:
		cfg.PayloadOn, cfg.PayloadOff = "on", "off"
		fallthrough
	default:
		cfg.StateTopic = StateTopic(p.topicPrefix, e.ID)
		cfg.AttributesTopic = AttributesTopic(p.topicPrefix, e.ID)
	}
	return cfg
}

// PublishEntities announces new or changed entities, then publishes state,
// attributes and availability of all of them. Every message is retained.
func (p *EntityPublisher) PublishEntities(ctx context.Context, entities []domain.Entity) error {
	var errs []error
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publishOne(e); err != nil {
			errs = append(errs, fmt.Errorf("entity %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *EntityPublisher) publishOne(e domain.Entity) error {
	raw, err := json.Marshal(p.config(e))
	if err != nil {
		return fmt.Errorf("marshal discovery: %w", err)
	}

	p.mu.Lock()
	changed := p.sent[e.ID] != string(raw)
	p.mu.Unlock()
	if changed {
		if err := p.b.Publish(DiscoveryTopic(p.discoveryPrefix, e.Kind, e.ID), true, raw); err != nil {
			return err
		}
		p.mu.Lock()
		p.sent[e.ID] = string(raw)
		p.kinds[e.ID] = e.Kind
		p.mu.Unlock()
	}

	avail := payloadOffline
	if e.Available {
		avail = payloadOnline
	}
	if err := p.b.Publish(AvailabilityTopic(p.topicPrefix, e.ID), true, []byte(avail)); err != nil {
		return err
	}
	if e.Kind == domain.KindButton {
		return nil
	}
	if err := p.b.Publish(StateTopic(p.topicPrefix, e.ID), true, []byte(e.State)); err != nil {
		return err
	}
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	rawAttrs, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	return p.b.Publish(AttributesTopic(p.topicPrefix, e.ID), true, rawAttrs)
}

// RemoveEntities clears the retained discovery config and state of each id,
// which removes the entity from the home-automation host.
func (p *EntityPublisher) RemoveEntities(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.mu.Lock()
		kind, ok := p.kinds[id]
		p.mu.Unlock()
		if !ok {
			kind = guessKind(id)
		}

		topics := []string{
			DiscoveryTopic(p.discoveryPrefix, kind, id),
			AvailabilityTopic(p.topicPrefix, id),
		}
		if kind != domain.KindButton {
			topics = append(topics, StateTopic(p.topicPrefix, id), AttributesTopic(p.topicPrefix, id))
		}
		failed := false
		for _, t := range topics {
			if err := p.b.Publish(t, true, nil); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
				failed = true
				break
			}
		}
		if !failed {
			p.mu.Lock()
			delete(p.kinds, id)
			delete(p.sent, id)
			p.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// guessKind covers ids announced by an earlier process.
func guessKind(id string) domain.EntityKind {
	if strings.HasSuffix(id, "_refresh") {
		return domain.KindButton
	}
	return domain.KindSensor
}
