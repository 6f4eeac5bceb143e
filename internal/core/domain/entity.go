package domain

// EntityKind is the home-automation platform an entity belongs to.
type EntityKind string

const (
	KindSensor       EntityKind = "sensor"
	KindBinarySensor EntityKind = "binary_sensor"
	KindButton       EntityKind = "button"
)

// EntityScope groups entities by what they describe.
type EntityScope string

const (
	ScopeAccount    EntityScope = "account"
	ScopeFavorite   EntityScope = "favorite"
	ScopeStation    EntityScope = "station"
	ScopeNearby     EntityScope = "nearby"
	ScopeController EntityScope = "controller"
)

// Entity is a projected home-automation entity with a stable id.
type Entity struct {
	ID          string         `json:"id"`
	Kind        EntityKind     `json:"kind"`
	Scope       EntityScope    `json:"scope"`
	Name        string         `json:"name"`
	Device      string         `json:"device"`
	DeviceName  string         `json:"device_name"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Diagnostic  bool           `json:"diagnostic,omitempty"`
	Available   bool           `json:"available"`
	Action      *RefreshAction `json:"action,omitempty"` // buttons only
}

// RefreshScope names what an on-demand refresh covers.
type RefreshScope string

const (
	RefreshAll      RefreshScope = "all"
	RefreshAccount  RefreshScope = "account"
	RefreshHistory  RefreshScope = "history"
	RefreshFavorite RefreshScope = "favorite"
	RefreshStation  RefreshScope = "station"
	RefreshStations RefreshScope = "stations"
)

// RefreshAction is a user-triggered refresh.
type RefreshAction struct {
	Scope  RefreshScope `json:"scope"`
	Target string       `json:"target,omitempty"`
}
