// Package conf loads and validates watchpost settings.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// WATCHPOST_SIMULATOR_PROBABILITY=0.5.
const EnvPrefix = "WATCHPOST"

// Match modes for detection-to-rule correlation.
const (
	MatchModeType     = "type"
	MatchModeIdentity = "identity"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Export encodings.
const (
	EncodingUTF8BOM = "utf8-bom"
	EncodingGB18030 = "gb18030"
)

// Settings is the root configuration.
type Settings struct {
	Log          LogSettings          `mapstructure:"log" yaml:"log"`
	Server       ServerSettings       `mapstructure:"server" yaml:"server"`
	Database     DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Catalog      CatalogSettings      `mapstructure:"catalog" yaml:"catalog"`
	Simulator    SimulatorSettings    `mapstructure:"simulator" yaml:"simulator"`
	Feed         FeedSettings         `mapstructure:"feed" yaml:"feed"`
	Correlation  CorrelationSettings  `mapstructure:"correlation" yaml:"correlation"`
	Alerting     AlertingSettings     `mapstructure:"alerting" yaml:"alerting"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Export       ExportSettings       `mapstructure:"export" yaml:"export"`
	Sentry       SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerSettings struct {
	Listen          string   `mapstructure:"listen" yaml:"listen"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type DatabaseSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the SQLite DSN; the default keeps everything in memory.
	Path string `mapstructure:"path" yaml:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type CatalogSettings struct {
	// SeedFile overrides the embedded fixture when set.
	SeedFile string   `mapstructure:"seed_file" yaml:"seed_file"`
	CacheTTL Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type SimulatorSettings struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Interval    Duration `mapstructure:"interval" yaml:"interval"`
	Probability float64  `mapstructure:"probability" yaml:"probability"`
	Seed        uint64   `mapstructure:"seed" yaml:"seed"`
	Locations   []string `mapstructure:"locations" yaml:"locations"`
}

type FeedSettings struct {
	MQTT MQTTSettings `mapstructure:"mqtt" yaml:"mqtt"`
}

type MQTTSettings struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Broker   string   `mapstructure:"broker" yaml:"broker"`
	Topic    string   `mapstructure:"topic" yaml:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	Buffer   int      `mapstructure:"buffer" yaml:"buffer"`
	Interval Duration `mapstructure:"interval" yaml:"interval"`
}

type CorrelationSettings struct {
	MatchMode string `mapstructure:"match_mode" yaml:"match_mode"`
}

type AlertingSettings struct {
	HistoryRetentionDays int `mapstructure:"history_retention_days" yaml:"history_retention_days"`
	// BusBuffer is the capacity of the detection queue between the feed and
	// the correlation engine.
	BusBuffer int `mapstructure:"bus_buffer" yaml:"bus_buffer"`
	// A rule that correlates EscalationThreshold detections within
	// EscalationWindow raises critical instead of warning notifications.
	// Zero disables escalation.
	EscalationThreshold int      `mapstructure:"escalation_threshold" yaml:"escalation_threshold"`
	EscalationWindow    Duration `mapstructure:"escalation_window" yaml:"escalation_window"`
	TitleTemplate       string   `mapstructure:"title_template" yaml:"title_template"`
	BodyTemplate        string   `mapstructure:"body_template" yaml:"body_template"`
}

type NotificationSettings struct {
	RecentLimit int              `mapstructure:"recent_limit" yaml:"recent_limit"`
	Webhook     WebhookSettings  `mapstructure:"webhook" yaml:"webhook"`
	Shoutrrr    ShoutrrrSettings `mapstructure:"shoutrrr" yaml:"shoutrrr"`
}

type WebhookSettings struct {
	URL       string   `mapstructure:"url" yaml:"url"`
	Timeout   Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64  `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Burst     int      `mapstructure:"burst" yaml:"burst"`
}

type ShoutrrrSettings struct {
	URLs    []string `mapstructure:"urls" yaml:"urls"`
	Timeout Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ExportSettings struct {
	Timezone string         `mapstructure:"timezone" yaml:"timezone"`
	Encoding string         `mapstructure:"encoding" yaml:"encoding"`
	Remote   RemoteSettings `mapstructure:"remote" yaml:"remote"`
}

// RemoteSettings configures ftp:// and sftp:// export destinations.
// Credentials come from the destination URL.
type RemoteSettings struct {
	Timeout Duration `mapstructure:"timeout" yaml:"timeout"`
	// KnownHosts verifies sftp host keys; empty means ~/.ssh/known_hosts.
	KnownHosts string `mapstructure:"known_hosts" yaml:"known_hosts"`
	// KeyFile is an optional private key for sftp public key auth.
	KeyFile string `mapstructure:"key_file" yaml:"key_file"`
}

type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DefaultLocations is the fixed location set the simulator draws from.
var DefaultLocations = []string{
	"1号厂区大门",
	"2号厂区大门",
	"危化品仓库",
	"配电房",
	"数据中心机房A",
	"数据中心机房B",
	"停车场东区",
	"停车场西区",
	"生产车间1",
	"行政楼大厅",
}

// setDefaults registers every default on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "file::memory:?cache=shared&_foreign_keys=ON")
	v.SetDefault("catalog.cache_ttl", "5m")
	v.SetDefault("simulator.enabled", true)
	v.SetDefault("simulator.interval", "10s")
	v.SetDefault("simulator.probability", 0.3)
	v.SetDefault("simulator.locations", DefaultLocations)
	v.SetDefault("feed.mqtt.topic", "watchpost/detections")
	v.SetDefault("feed.mqtt.client_id", "watchpost")
	v.SetDefault("feed.mqtt.buffer", 256)
	v.SetDefault("feed.mqtt.interval", "1s")
	v.SetDefault("correlation.match_mode", MatchModeType)
	v.SetDefault("alerting.history_retention_days", 30)
	v.SetDefault("alerting.bus_buffer", 1000)
	v.SetDefault("alerting.escalation_threshold", 5)
	v.SetDefault("alerting.escalation_window", "10m")
	v.SetDefault("notification.recent_limit", 200)
	v.SetDefault("notification.webhook.timeout", "5s")
	v.SetDefault("notification.webhook.rate_limit", 5)
	v.SetDefault("notification.webhook.burst", 10)
	v.SetDefault("notification.shoutrrr.timeout", "10s")
	v.SetDefault("export.timezone", "Local")
	v.SetDefault("export.encoding", EncodingUTF8BOM)
	v.SetDefault("export.remote.timeout", "30s")
}

// Load reads settings from path (optional) and the environment.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Default returns the settings used when no file or environment is present.
func Default() *Settings {
	s, err := Load("")
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(err)
	}
	return s
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var errs []error

	switch s.Database.Driver {
	case DriverSQLite:
		if s.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverMySQL:
		if s.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", s.Database.Driver))
	}

	if s.Simulator.Enabled {
		if s.Simulator.Interval.Std() <= 0 {
			errs = append(errs, errors.New("simulator.interval must be positive"))
		}
		if s.Simulator.Probability < 0 || s.Simulator.Probability > 1 {
			errs = append(errs, fmt.Errorf("simulator.probability %v must be within [0, 1]", s.Simulator.Probability))
		}
		if len(s.Simulator.Locations) == 0 {
			errs = append(errs, errors.New("simulator.locations must not be empty"))
		}
	}

	if s.Feed.MQTT.Enabled && s.Feed.MQTT.Broker == "" {
		errs = append(errs, errors.New("feed.mqtt.broker is required when the MQTT feed is enabled"))
	}

	switch s.Correlation.MatchMode {
	case MatchModeType, MatchModeIdentity:
	default:
		errs = append(errs, fmt.Errorf("correlation.match_mode %q must be %q or %q",
			s.Correlation.MatchMode, MatchModeType, MatchModeIdentity))
	}

	if s.Alerting.EscalationThreshold > 0 && s.Alerting.EscalationWindow.Std() <= 0 {
		errs = append(errs, errors.New("alerting.escalation_window must be positive when escalation is enabled"))
	}

	switch s.Export.Encoding {
	case EncodingUTF8BOM, EncodingGB18030:
	default:
		errs = append(errs, fmt.Errorf("export.encoding %q is not supported", s.Export.Encoding))
	}
	if _, err := s.ExportLocation(); err != nil {
		errs = append(errs, err)
	}
	if s.Export.Remote.Timeout.Std() <= 0 {
		errs = append(errs, errors.New("export.remote.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ExportLocation resolves export.timezone.
func (s *Settings) ExportLocation() (*time.Location, error) {
	if s.Export.Timezone == "" || s.Export.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Export.Timezone)
	if err != nil {
		return nil, fmt.Errorf("export.timezone %q: %w", s.Export.Timezone, err)
	}
	return loc, nil
}
