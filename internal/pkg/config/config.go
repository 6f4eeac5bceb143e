package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Bike      BikeConfig      `mapstructure:"bike"`
	Nearby    NearbyConfig    `mapstructure:"nearby"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BikeConfig selects the upstream source and the polling cadence.
type BikeConfig struct {
	Mode            string   `mapstructure:"mode"` // "cookie" or "api_key"
	BaseURL         string   `mapstructure:"base_url"`
	OpenAPIHost     string   `mapstructure:"openapi_host"`
	Cookie          string   `mapstructure:"cookie"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	APIKey          string   `mapstructure:"api_key"`
	StationIDs      []string `mapstructure:"station_ids"`
	PollInterval    int      `mapstructure:"poll_interval"`
	HistoryInterval int      `mapstructure:"history_interval"`
	AccountInterval int      `mapstructure:"account_interval"`
	HistoryPeriods  []string `mapstructure:"history_periods"`
	Timezone        string   `mapstructure:"timezone"`
	RequestTimeout  int      `mapstructure:"request_timeout"`
	RealtimeTTL     int      `mapstructure:"realtime_ttl"`
	PageSize        int      `mapstructure:"page_size"`
	MaxPages        int      `mapstructure:"max_pages"`
	PageRetries     int      `mapstructure:"page_retries"`
	FoldQR          bool     `mapstructure:"fold_qr"`
	FoldElectric    bool     `mapstructure:"fold_electric"`
}

// AuthMode builds the domain auth mode from the configured mode.
func (b BikeConfig) AuthMode() domain.AuthMode {
	if b.Mode == "api_key" {
		return domain.APIKeyMode{Key: b.APIKey}
	}
	return domain.CookieSessionMode{Cookie: b.Cookie, Username: b.Username, Password: b.Password}
}

func (b BikeConfig) CountPolicy() domain.CountPolicy {
	return domain.CountPolicy{FoldQR: b.FoldQR, FoldElectric: b.FoldElectric}
}

func (b BikeConfig) Poll() time.Duration    { return time.Duration(b.PollInterval) * time.Second }
func (b BikeConfig) History() time.Duration { return time.Duration(b.HistoryInterval) * time.Second }
func (b BikeConfig) Account() time.Duration { return time.Duration(b.AccountInterval) * time.Second }

// Location loads the configured timezone, falling back to KST.
func (b BikeConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("KST", 9*60*60)
}

type NearbyConfig struct {
	Radius        int     `mapstructure:"radius"`
	MinBikes      int     `mapstructure:"min_bikes"`
	MaxResults    int     `mapstructure:"max_results"`
	HomeLat       float64 `mapstructure:"home_lat"`
	HomeLon       float64 `mapstructure:"home_lon"`
	LocationTopic string  `mapstructure:"location_topic"`
}

type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr        string `mapstructure:"addr"`
	SnapshotTTL int    `mapstructure:"snapshot_ttl"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SEOULBIKE_BIKE_COOKIE → bike.cookie
	v.SetEnvPrefix("SEOULBIKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Bike.StationIDs = splitList(cfg.Bike.StationIDs)
	cfg.Bike.HistoryPeriods = splitList(cfg.Bike.HistoryPeriods)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("bike.mode", "cookie")
	v.SetDefault("bike.base_url", "https://www.bikeseoul.com")
	v.SetDefault("bike.openapi_host", "http://openapi.seoul.go.kr:8088")
	v.SetDefault("bike.cookie", "")
	v.SetDefault("bike.username", "")
	v.SetDefault("bike.password", "")
	v.SetDefault("bike.api_key", "")
	v.SetDefault("bike.station_ids", []string{})
	v.SetDefault("bike.poll_interval", 60)
	v.SetDefault("bike.history_interval", 300)
	v.SetDefault("bike.account_interval", 1800)
	v.SetDefault("bike.history_periods", []string{domain.PeriodHistory, domain.PeriodWeek, domain.PeriodMonth})
	v.SetDefault("bike.timezone", "Asia/Seoul")
	v.SetDefault("bike.request_timeout", 20)
	v.SetDefault("bike.realtime_ttl", 30)
	v.SetDefault("bike.page_size", 1000)
	v.SetDefault("bike.max_pages", 10)
	v.SetDefault("bike.page_retries", 2)
	v.SetDefault("bike.fold_qr", true)
	v.SetDefault("bike.fold_electric", false)

	v.SetDefault("nearby.radius", 500)
	v.SetDefault("nearby.min_bikes", 1)
	v.SetDefault("nearby.max_results", 5)
	v.SetDefault("nearby.home_lat", 0.0)
	v.SetDefault("nearby.home_lon", 0.0)
	v.SetDefault("nearby.location_topic", "")

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", service)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.topic_prefix", "seoulbike")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "seoulbike")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "seoulbike")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.snapshot_ttl", 0)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "seoulbike-archive")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
}

// splitList accepts both YAML lists and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Bike.Mode {
	case "cookie":
		if strings.TrimSpace(c.Bike.Cookie) == "" && (c.Bike.Username == "" || c.Bike.Password == "") {
			errs = append(errs, "bike.cookie or bike.username/bike.password is required in cookie mode")
		}
	case "api_key":
		if strings.TrimSpace(c.Bike.APIKey) == "" {
			errs = append(errs, "bike.api_key is required in api_key mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("bike.mode must be cookie or api_key, got %q", c.Bike.Mode))
	}
	if c.Bike.PollInterval <= 0 {
		errs = append(errs, "bike.poll_interval must be positive")
	}
	if c.Bike.HistoryInterval < 0 || c.Bike.AccountInterval < 0 {
		errs = append(errs, "bike.history_interval and bike.account_interval must not be negative")
	}
	for _, p := range c.Bike.HistoryPeriods {
		if p != domain.PeriodHistory && p != domain.PeriodWeek && p != domain.PeriodMonth {
			errs = append(errs, fmt.Sprintf("bike.history_periods: unknown period %q", p))
		}
	}
	if c.Bike.PageSize <= 0 || c.Bike.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("bike.page_size must be 1-1000, got %d", c.Bike.PageSize))
	}

	if c.Nearby.Radius <= 0 {
		errs = append(errs, "nearby.radius must be positive")
	}
	if c.Nearby.MinBikes < 0 || c.Nearby.MaxResults < 0 {
		errs = append(errs, "nearby.min_bikes and nearby.max_results must not be negative")
	}
	home := domain.GeoPoint{Lat: c.Nearby.HomeLat, Lon: c.Nearby.HomeLon}
	if (home.Lat != 0 || home.Lon != 0) && !home.Valid() {
		errs = append(errs, "nearby.home_lat/home_lon are out of range")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
