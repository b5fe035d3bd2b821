// Package config loads the service configuration with viper: an optional
// YAML file, IDSR_* environment variables and defaults, plus the legacy
// .idsr.json credentials file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendDHIS2  = "dhis2"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Catalogue sources.
const (
	SourceDHIS2 = "dhis2"
	SourceFile  = "file"
)

// Config is the full service configuration.
type Config struct {
	DHIS2     DHIS2Config     `mapstructure:"dhis2"`
	Store     StoreConfig     `mapstructure:"store"`
	Catalogue CatalogueConfig `mapstructure:"catalogue"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Log       LogConfig       `mapstructure:"log"`
	// CredentialsFile is the legacy {url, username, password} JSON file.
	CredentialsFile string `mapstructure:"credentials_file"`
}

type DHIS2Config struct {
	URL        string `mapstructure:"url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Namespace  string `mapstructure:"namespace"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Timeout is the per-request timeout.
func (c DHIS2Config) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

type StoreConfig struct {
	// Backend holds epidemics and alerts: dhis2, sqlite or memory.
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// Activity keeps the lifecycle audit trail in SQLite when true.
	Activity bool `mapstructure:"activity"`
}

type CatalogueConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type EngineConfig struct {
	// CaseSource selects case-based counts: analytics or events.
	CaseSource string `mapstructure:"case_source"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dhis2.url", "")
	v.SetDefault("dhis2.username", "")
	v.SetDefault("dhis2.password", "")
	v.SetDefault("dhis2.namespace", "ugxzr_idsr_app")
	v.SetDefault("dhis2.timeout_sec", 60)
	v.SetDefault("store.backend", BackendDHIS2)
	v.SetDefault("store.sqlite_path", "idsr.db")
	v.SetDefault("store.activity", true)
	v.SetDefault("catalogue.source", SourceDHIS2)
	v.SetDefault("catalogue.path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("schedule.interval", time.Duration(0))
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("engine.case_source", "analytics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("credentials_file", ".idsr.json")
}

// Load reads the configuration. path names an explicit config file; when
// empty, idsr.yaml is searched in the working directory and $HOME/.idsr.
// Credentials from the legacy file fill any DHIS2 field left empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("idsr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.idsr")
	}

	v.SetEnvPrefix("IDSR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.loadCredentials(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadCredentials reads the legacy credentials file. A missing file is not
// an error.
func (c *Config) loadCredentials() error {
	if c.CredentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(c.CredentialsFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(c.CredentialsFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading credentials file %s: %w", c.CredentialsFile, err)
	}
	if c.DHIS2.URL == "" {
		c.DHIS2.URL = v.GetString("url")
	}
	if c.DHIS2.Username == "" {
		c.DHIS2.Username = v.GetString("username")
	}
	if c.DHIS2.Password == "" {
		c.DHIS2.Password = v.GetString("password")
	}
	return nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.DHIS2.URL == "" {
		errs = append(errs, errors.New("dhis2.url is required"))
	}
	switch c.Store.Backend {
	case BackendDHIS2, BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	switch c.Catalogue.Source {
	case SourceDHIS2:
	case SourceFile:
		if c.Catalogue.Path == "" {
			errs = append(errs, errors.New("catalogue.path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalogue.source %q", c.Catalogue.Source))
	}
	switch c.Engine.CaseSource {
	case "", "analytics", "events":
	default:
		errs = append(errs, fmt.Errorf("unknown engine.case_source %q", c.Engine.CaseSource))
	}
	if c.Schedule.Interval < 0 {
		errs = append(errs, errors.New("schedule.interval must not be negative"))
	}
	return errors.Join(errs...)
}

// NeedsSQLite reports whether any store lives in the SQLite database.
func (c *Config) NeedsSQLite() bool {
	return c.Store.Backend == BackendSQLite || c.Store.Activity
}
