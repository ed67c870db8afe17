package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" decode cleanly.
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection pool settings.
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// IngestionConfig holds the batch ingestion surface: input directories,
// conflict semantics and worker pool size.
type IngestionConfig struct {
	WeatherDataDir   string `yaml:"weather_data_dir"`
	CropYieldDataDir string `yaml:"crop_yield_data_dir"`
	Workers          int    `yaml:"workers"`
	// OnConflict selects upsert semantics: "refresh" updates existing rows,
	// "ignore" skips them.
	OnConflict string `yaml:"on_conflict"`
	// Strategy selects reconciliation: "upsert" (conflict-aware bulk write)
	// or "query" (batched lookup then split creates/updates).
	Strategy string `yaml:"strategy"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// defaults returns the baseline configuration before file and env overrides.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "weather_crop",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
			ConnMaxIdleTime: Duration(5 * time.Minute),
		},
		Ingestion: IngestionConfig{
			WeatherDataDir:   "./wx_data",
			CropYieldDataDir: "./yld_data",
			Workers:          5,
			OnConflict:       "refresh",
			Strategy:         "upsert",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds configuration from defaults, an optional YAML file
// (CONFIG_FILE env var, falling back to ./config.yaml) and environment
// variable overrides, in that order.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_FILE") == "":
		// No config file is fine; defaults plus env cover everything.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Database, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")

	setString(&cfg.Ingestion.WeatherDataDir, "WEATHER_DATA_DIR")
	setString(&cfg.Ingestion.CropYieldDataDir, "CROP_YIELD_DATA_DIR")
	setInt(&cfg.Ingestion.Workers, "INGEST_WORKERS")
	setString(&cfg.Ingestion.OnConflict, "INGEST_ON_CONFLICT")
	setString(&cfg.Ingestion.Strategy, "INGEST_STRATEGY")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.Ingestion.Workers < 1 {
		return fmt.Errorf("ingestion workers must be at least 1")
	}
	switch c.Ingestion.OnConflict {
	case "refresh", "ignore":
	default:
		return fmt.Errorf("invalid on_conflict %q, expected refresh or ignore", c.Ingestion.OnConflict)
	}
	switch c.Ingestion.Strategy {
	case "upsert", "query":
	default:
		return fmt.Errorf("invalid strategy %q, expected upsert or query", c.Ingestion.Strategy)
	}
	return nil
}
