package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration. It is loaded once at startup and
// handed to constructors; nothing mutates it afterwards.
type Config struct {
	Feed        FeedConfig     `mapstructure:"feed"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Credentials Credentials    `mapstructure:"credentials"`
	Stream      StreamConfig   `mapstructure:"stream"`
	Capture     CaptureConfig  `mapstructure:"capture"`
	Monitor     MonitorConfig  `mapstructure:"monitor"`
	Catalog     CatalogConfig  `mapstructure:"catalog"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Database    DatabaseConfig `mapstructure:"database"`
	MQTT        MQTTConfig     `mapstructure:"mqtt"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Log         LogConfig      `mapstructure:"log"`
}

type FeedConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	PageSize  int           `mapstructure:"page_size"`
	PageDelay time.Duration `mapstructure:"page_delay"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	InfoURL               string        `mapstructure:"info_url"`
	ExchangeURL           string        `mapstructure:"exchange_url"`
	DefaultSystemSourceID string        `mapstructure:"default_system_source_id"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// Credentials is the browser-like credential material sent with upstream requests.
type Credentials struct {
	UserAgent         string            `mapstructure:"user_agent"`
	Referer           string            `mapstructure:"referer"`
	Origin            string            `mapstructure:"origin"`
	Cookies           map[string]string `mapstructure:"cookies"`
	VerificationToken string            `mapstructure:"verification_token"`
}

type StreamConfig struct {
	MasterFilename     string        `mapstructure:"master_filename"`
	VariantFilename    string        `mapstructure:"variant_filename"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	SegmentConcurrency int           `mapstructure:"segment_concurrency"`
}

type CaptureConfig struct {
	Duration               time.Duration `mapstructure:"duration"`
	NominalSegmentDuration time.Duration `mapstructure:"nominal_segment_duration"`
	Workers                int           `mapstructure:"workers"`
	MaxCamerasPerIncident  int           `mapstructure:"max_cameras_per_incident"`
}

// SegmentLimit converts the target duration into a segment count (at least 1).
func (c CaptureConfig) SegmentLimit() int {
	if c.NominalSegmentDuration <= 0 {
		return 1
	}
	n := int(c.Duration / c.NominalSegmentDuration)
	if n < 1 {
		return 1
	}
	return n
}

type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	CrashKeywords []string      `mapstructure:"crash_keywords"`
	StateFile     string        `mapstructure:"state_file"`
}

type CatalogConfig struct {
	Path   string              `mapstructure:"path"`
	Lookup map[string][]string `mapstructure:"lookup"` // roadway or county -> camera ids
}

type StorageConfig struct {
	ArtifactDir string `mapstructure:"artifact_dir"`
	Bucket      string `mapstructure:"bucket"`
}

type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

type MetricsConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("feed.base_url", "https://fl511.com")
	v.SetDefault("feed.path", "/List/GetData/traffic")
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.page_delay", "0s")
	v.SetDefault("feed.timeout", "30s")

	v.SetDefault("auth.info_url", "https://fl511.com/Camera/GetVideoUrl")
	v.SetDefault("auth.exchange_url", "https://divas.cloud/VDS-API/SecureTokenUri/GetSecureTokenUriBySourceId")
	v.SetDefault("auth.default_system_source_id", "District 2")
	v.SetDefault("auth.timeout", "15s")

	v.SetDefault("credentials.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36")
	v.SetDefault("credentials.referer", "https://fl511.com/")
	v.SetDefault("credentials.origin", "https://fl511.com")
	v.SetDefault("credentials.verification_token", "")

	v.SetDefault("stream.master_filename", "index.m3u8")
	v.SetDefault("stream.variant_filename", "xflow.m3u8")
	v.SetDefault("stream.timeout", "30s")
	v.SetDefault("stream.insecure_skip_verify", false)
	v.SetDefault("stream.segment_concurrency", 1)

	v.SetDefault("capture.duration", "5m")
	v.SetDefault("capture.nominal_segment_duration", "2s")
	v.SetDefault("capture.workers", 3)
	v.SetDefault("capture.max_cameras_per_incident", 5)

	v.SetDefault("monitor.interval", "5s")
	v.SetDefault("monitor.crash_keywords", []string{"crash", "accident", "collision", "wreck"})
	v.SetDefault("monitor.state_file", "")

	v.SetDefault("catalog.path", "cameras.yaml")
	v.SetDefault("storage.artifact_dir", "./captures")
	v.SetDefault("storage.bucket", "local")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "trafficcam")
	v.SetDefault("mqtt.topic", "trafficcam/captures")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("metrics.port", "9110")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	// Local development keeps secrets in .env; production injects the environment directly.
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".trafficcam")
	}

	SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("TRAFFICCAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// A missing config file is fine, defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// Load decodes the global viper state into a validated Config.
func Load() (*Config, error) {
	return FromViper(viper.GetViper())
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Feed.BaseURL = strings.TrimRight(cfg.Feed.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the poll loop and capture pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Capture.Workers <= 0 {
		errs = append(errs, errors.New("capture.workers must be positive"))
	}
	if c.Capture.MaxCamerasPerIncident <= 0 {
		errs = append(errs, errors.New("capture.max_cameras_per_incident must be positive"))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be positive"))
	}
	if c.Feed.BaseURL == "" {
		errs = append(errs, errors.New("feed.base_url is required"))
	}
	if c.Auth.InfoURL == "" || c.Auth.ExchangeURL == "" {
		errs = append(errs, errors.New("auth.info_url and auth.exchange_url are required"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, errors.New("feed.timeout must be positive"))
	}
	if c.Auth.Timeout <= 0 {
		errs = append(errs, errors.New("auth.timeout must be positive"))
	}
	if c.Stream.Timeout <= 0 {
		errs = append(errs, errors.New("stream.timeout must be positive"))
	}
	if c.Stream.SegmentConcurrency <= 0 {
		errs = append(errs, errors.New("stream.segment_concurrency must be positive"))
	}
	return errors.Join(errs...)
}
