package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		IdleTimeout  time.Duration `yaml:"idleTimeout"`
		MaxUploadMB  int64         `yaml:"maxUploadMB"`
	} `yaml:"server"`

	// InstancePath is the root of the processed/ and uploads/ trees.
	InstancePath string `yaml:"instancePath"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Auth struct {
		// APIKeys maps operator name to key. Empty disables authentication.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity        int `yaml:"capacity"`
		RefillPerSecond int `yaml:"refillPerSecond"`
	} `yaml:"rateLimit"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`

	Database struct {
		Driver      string `yaml:"driver"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Name        string `yaml:"name"`
		SSLMode     string `yaml:"sslMode"`
		AutoMigrate bool   `yaml:"autoMigrate"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Server.Port = 5000
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.IdleTimeout = 60 * time.Second
	c.Server.MaxUploadMB = 512
	c.InstancePath = "instance"
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.RateLimit.Capacity = 60
	c.RateLimit.RefillPerSecond = 10
	c.CORS.AllowedOrigins = []string{"*"}
	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "defect-tracker"
	c.Minio.Region = "us-east-1"
	c.OpenAI.Model = "gpt-4o-mini"
	return &c
}

// Load reads path on top of Default, then .env and environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	str("INSTANCE_PATH", &c.InstancePath)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_HOST", &c.Database.Host)
	if err := num("DATABASE_PORT", &c.Database.Port); err != nil {
		return err
	}
	str("DATABASE_USER", &c.Database.User)
	str("DATABASE_PASSWORD", &c.Database.Password)
	str("DATABASE_NAME", &c.Database.Name)

	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.BucketName)

	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	// API_KEYS=alice:key1,bob:key2
	if v, ok := lookup("API_KEYS"); ok && v != "" {
		keys := map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			name, key, found := strings.Cut(strings.TrimSpace(pair), ":")
			if !found || name == "" || key == "" {
				return fmt.Errorf("API_KEYS: expected name:key, got %q", pair)
			}
			keys[name] = key
		}
		c.Auth.APIKeys = keys
	}
	return nil
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.InstancePath) == "" {
		errs = append(errs, errors.New("instancePath is required"))
	}
	switch c.Database.Driver {
	case "":
	case "postgres", "mysql":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.host and database.name are required for %s", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver: %q", c.Database.Driver))
	}
	if c.RateLimit.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("rateLimit.capacity must be positive: %d", c.RateLimit.Capacity))
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("rateLimit.refillPerSecond must be positive: %d", c.RateLimit.RefillPerSecond))
	}
	if c.Minio.Endpoint != "" && c.Minio.BucketName == "" {
		errs = append(errs, errors.New("minio.bucketName is required when minio.endpoint is set"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format: %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// DatabaseEnabled reports whether a database driver is configured.
func (c *Config) DatabaseEnabled() bool { return c.Database.Driver != "" }

func (c *Config) MinioEnabled() bool { return c.Minio.Endpoint != "" }

func (c *Config) OpenAIEnabled() bool { return c.OpenAI.APIKey != "" }

func (c *Config) dbPort() int {
	if c.Database.Port != 0 {
		return c.Database.Port
	}
	if c.Database.Driver == "mysql" {
		return 3306
	}
	return 5432
}

// MySQLDSN builds a go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.dbPort(),
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.dbPort()),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN returns the driver-specific connection string.
func (c *Config) DSN() string {
	if c.Database.Driver == "mysql" {
		return c.MySQLDSN()
	}
	return c.PostgresDSN()
}

// MigrateURL returns the database URL in golang-migrate form.
func (c *Config) MigrateURL() string {
	if c.Database.Driver == "mysql" {
		return "mysql://" + c.MySQLDSN()
	}
	return c.PostgresDSN()
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
