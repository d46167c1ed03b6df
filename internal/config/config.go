package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendInfluxDB = "influxdb"
	BackendMemory   = "memory"
)

// Config holds the application's configuration.
type Config struct {
	Port                string
	StoreBackend        string
	SQLitePath          string
	StoreConnectTimeout time.Duration
	Database            DatabaseConfig
	Influx              InfluxConfig
	Redis               RedisConfig
	CacheTTL            time.Duration
	CORSAllowedOrigins  []string
	LogLevel            string
	LogFormat           string
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// InfluxConfig describes the InfluxDB connection.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// RedisConfig describes the optional result cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (Config, error) {
	//load env variables
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}

	cfg := Default()
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.StoreConnectTimeout, err = getDuration("STORE_CONNECT_TIMEOUT", cfg.StoreConnectTimeout); err != nil {
		return Config{}, err
	}
	if err := cfg.Database.LoadFromEnv("DB"); err != nil {
		return Config{}, err
	}
	cfg.Influx.LoadFromEnv("INFLUXDB")
	if err := cfg.Redis.LoadFromEnv("REDIS"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Port:                "8000",
		StoreBackend:        BackendSQLite,
		SQLitePath:          "readings.db",
		StoreConnectTimeout: 30 * time.Second,
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "readings",
			SSLMode:  "disable",
		},
		Influx:             InfluxConfig{Bucket: "readings"},
		CacheTTL:           5 * time.Minute,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Validate reports incomplete settings for the selected backend.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLite configuration is incomplete. Please set SQLITE_PATH")
		}
	case BackendPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
			return fmt.Errorf("database configuration is incomplete. Please set DB_HOST, DB_USER, and DB_DATABASE environment variables")
		}
	case BackendInfluxDB:
		if c.Influx.URL == "" || c.Influx.Token == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			return fmt.Errorf("InfluxDB configuration is incomplete. Please set INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, and INFLUXDB_BUCKET environment variables")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s, %s, %s or %s)",
			c.StoreBackend, BackendSQLite, BackendPostgres, BackendInfluxDB, BackendMemory)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	return nil
}

// DSN renders the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv overrides fields from PREFIX_HOST, PREFIX_PORT, PREFIX_USER,
// PREFIX_PASSWORD, PREFIX_DATABASE and PREFIX_SSLMODE.
func (c *DatabaseConfig) LoadFromEnv(prefix string) error {
	c.Host = getEnv(prefix+"_HOST", c.Host)
	c.User = getEnv(prefix+"_USER", c.User)
	c.Password = getEnv(prefix+"_PASSWORD", c.Password)
	c.Database = getEnv(prefix+"_DATABASE", c.Database)
	c.SSLMode = getEnv(prefix+"_SSLMODE", c.SSLMode)
	if port := os.Getenv(prefix + "_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s_PORT %q: %w", prefix, port, err)
		}
		c.Port = p
	}
	return nil
}

func (c *InfluxConfig) LoadFromEnv(prefix string) {
	c.URL = getEnv(prefix+"_URL", c.URL)
	c.Token = getEnv(prefix+"_TOKEN", c.Token)
	c.Org = getEnv(prefix+"_ORG", c.Org)
	c.Bucket = getEnv(prefix+"_BUCKET", c.Bucket)
}

func (c *RedisConfig) LoadFromEnv(prefix string) error {
	c.Addr = getEnv(prefix+"_ADDR", c.Addr)
	c.Password = getEnv(prefix+"_PASSWORD", c.Password)
	if db := os.Getenv(prefix + "_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid %s_DB %q: %w", prefix, db, err)
		}
		c.DB = n
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
