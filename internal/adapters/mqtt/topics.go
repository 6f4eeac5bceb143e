package mqtt

import (
	"strings"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

const (
	defaultTopicPrefix     = "seoulbike"
	defaultDiscoveryPrefix = "homeassistant"
	nodeID                 = "seoulbike"
)

func orDefault(v, def string) string {
	if v = strings.Trim(v, "/ "); v == "" {
		return def
	}
	return v
}

// StatusTopic carries the retained online/offline bridge status.
func StatusTopic(prefix string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/status"
}

// StateTopic is where an entity's state is published.
func StateTopic(prefix, id string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/" + id + "/state"
}

// AttributesTopic is where an entity's attributes are published as JSON.
func AttributesTopic(prefix, id string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/" + id + "/attributes"
}

// AvailabilityTopic carries "online" or "offline" for one entity.
func AvailabilityTopic(prefix, id string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/" + id + "/availability"
}

// PressTopic is the command topic of a button entity.
func PressTopic(prefix, id string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/" + id + "/press"
}

// PressWildcard matches every button's command topic.
func PressWildcard(prefix string) string {
	return orDefault(prefix, defaultTopicPrefix) + "/+/press"
}

// DiscoveryTopic is the retained config topic of an entity.
func DiscoveryTopic(discoveryPrefix string, kind domain.EntityKind, id string) string {
	return orDefault(discoveryPrefix, defaultDiscoveryPrefix) + "/" + string(kind) + "/" + nodeID + "/" + id + "/config"
}

// idFromPressTopic extracts the entity id from "<prefix>/<id>/press".
func idFromPressTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, orDefault(prefix, defaultTopicPrefix)+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/press")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
