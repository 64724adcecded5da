package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix         = "CATALOG_"
	DefaultConfigPath = "catalog.yaml"
)

type Config struct {
	Partner   PartnerConfig   `koanf:"partner"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Marketing MarketingConfig `koanf:"marketing"`
	Database  DatabaseConfig  `koanf:"database"`
	Media     MediaConfig     `koanf:"media"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type PartnerConfig struct {
	ShortCode        string `koanf:"short_code" validate:"required"`
	Name             string `koanf:"name"`
	LMSURL           string `koanf:"lms_url" validate:"omitempty,url"`
	MarketingSiteURL string `koanf:"marketing_site_url" validate:"omitempty,url"`
}

// UpstreamConfig covers the four catalog source APIs. They share one credential.
type UpstreamConfig struct {
	OrganizationsURL string        `koanf:"organizations_url" validate:"omitempty,url"`
	CoursesURL       string        `koanf:"courses_url" validate:"omitempty,url"`
	EcommerceURL     string        `koanf:"ecommerce_url" validate:"omitempty,url"`
	ProgramsURL      string        `koanf:"programs_url" validate:"omitempty,url"`
	AccessToken      string        `koanf:"access_token"`
	TokenType        string        `koanf:"token_type" validate:"oneof=JWT Bearer"`
	Username         string        `koanf:"username"`
	PageSize         int           `koanf:"page_size" validate:"min=1,max=1000"`
	MaxWorkers       int           `koanf:"max_workers" validate:"min=1"`
	CoursesPageDelay time.Duration `koanf:"courses_page_delay" validate:"min=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"min=0"`
	MaxAttempts      int           `koanf:"max_attempts" validate:"min=1"`
}

type MarketingConfig struct {
	// PublishEnabled gates CMS publication on top of the partner having a marketing site.
	PublishEnabled bool          `koanf:"publish_enabled"`
	APIURL         string        `koanf:"api_url" validate:"omitempty,url"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	TokenTTL       time.Duration `koanf:"token_ttl" validate:"min=0"`
	Timeout        time.Duration `koanf:"timeout" validate:"min=0"`
}

type DatabaseConfig struct {
	Driver           string `koanf:"driver" validate:"oneof=postgres sqlite"`
	DSN              string `koanf:"dsn" validate:"required"`
	ConcurrentWrites bool   `koanf:"concurrent_writes"`
	MaxOpenConns     int    `koanf:"max_open_conns" validate:"min=0"`
}

type MediaConfig struct {
	Backend string     `koanf:"backend" validate:"oneof=local sftp"`
	Dir     string     `koanf:"dir"`
	SFTP    SFTPConfig `koanf:"sftp"`
}

type SFTPConfig struct {
	Host                  string `koanf:"host"`
	Port                  int    `koanf:"port" validate:"min=0,max=65535"`
	User                  string `koanf:"user"`
	Pass                  string `koanf:"pass"`
	RemoteDir             string `koanf:"remote_dir"`
	KnownHosts            string `koanf:"known_hosts"`
	InsecureIgnoreHostKey bool   `koanf:"insecure_ignore_host_key"`
}

type LoggingConfig struct {
	Mode string `koanf:"mode"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

func defaultConfig() *Config {
	return &Config{
		Partner: PartnerConfig{
			ShortCode: "edx",
		},
		Upstream: UpstreamConfig{
			TokenType:        "JWT",
			PageSize:         50,
			MaxWorkers:       7,
			CoursesPageDelay: 30 * time.Second,
			Timeout:          2 * time.Minute,
			MaxAttempts:      8,
		},
		Marketing: MarketingConfig{
			TokenTTL: time.Hour,
			Timeout:  time.Minute,
		},
		Database: DatabaseConfig{
			Driver:           "sqlite",
			DSN:              "catalog.db",
			ConcurrentWrites: true,
		},
		Media: MediaConfig{
			Backend: "local",
			Dir:     "media",
			SFTP:    SFTPConfig{Port: 22, RemoteDir: "/"},
		},
		Logging: LoggingConfig{Mode: "dev"},
	}
}

// Load layers struct defaults, an optional YAML file and CATALOG_* environment
// variables, then validates the result. An empty path falls back to
// CATALOG_CONFIG and then catalog.yaml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = getenv(EnvPrefix+"CONFIG", DefaultConfigPath)
		explicit = path != DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransformFunc maps CATALOG_UPSTREAM__PAGE_SIZE to upstream.page_size.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Marketing.PublishEnabled {
		if c.Partner.MarketingSiteURL == "" {
			return errors.New("config: marketing.publish_enabled requires partner.marketing_site_url")
		}
		if c.Marketing.APIURL == "" || c.Marketing.Username == "" || c.Marketing.Password == "" {
			return errors.New("config: marketing.publish_enabled requires marketing api_url, username and password")
		}
	}
	if c.Media.Backend == "sftp" && (c.Media.SFTP.Host == "" || c.Media.SFTP.User == "") {
		return errors.New("config: media backend sftp requires media.sftp.host and media.sftp.user")
	}
	return nil
}

// PublishToMarketing reports whether saves should be mirrored to the CMS.
func (c *Config) PublishToMarketing() bool {
	return c.Marketing.PublishEnabled && c.Partner.MarketingSiteURL != ""
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
