package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cache drivers.
const (
	CacheDriverSQLite   = "sqlite"
	CacheDriverRedis    = "redis"
	CacheDriverDisabled = "disabled"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Backend  BackendConfig     `yaml:"backend"`
	Cache    CacheConfig       `yaml:"cache"`
	Photo    PhotoConfig       `yaml:"photo"`
	Location LocationConfig    `yaml:"location"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Photo.Validate(); err != nil {
		return fmt.Errorf("photo: %w", err)
	}
	if err := c.Location.Validate(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackendConfig points at the reports backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.RequestURL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// CacheConfig selects where lookup snapshots are kept.
//
// Driver is one of:
//   - "sqlite" (default): a local database file at Path.
//   - "redis": a shared Redis at RedisURL.
//   - "disabled": nothing is cached.
type CacheConfig struct {
	Driver   string        `yaml:"driver"`
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = CacheDriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(CacheDriverSQLite, CacheDriverRedis, CacheDriverDisabled)),
		validation.Field(&c.Path, validation.When(c.Driver == CacheDriverSQLite, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(c.Driver == CacheDriverRedis, validation.Required)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// PhotoConfig holds the photo inbox settings.
type PhotoConfig struct {
	Dir string `yaml:"dir"`
	// JPEGQuality re-encodes JPEG photos before upload; 0 sends them unchanged.
	JPEGQuality int `yaml:"jpeg_quality"`
}

// Validate validates the photo configuration.
func (c *PhotoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.JPEGQuality, validation.Min(0), validation.Max(100)),
	)
}

// LocationConfig is the fixed device position used for "current location".
// Both coordinates must be set for it to be used.
type LocationConfig struct {
	Lat *float64 `yaml:"lat"`
	Lon *float64 `yaml:"lon"`
}

// Validate validates the location configuration.
func (c *LocationConfig) Validate() error {
	if (c.Lat == nil) != (c.Lon == nil) {
		return fmt.Errorf("lat and lon must be set together")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&c.Lon, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// Configured reports whether a position was set.
func (c *LocationConfig) Configured() bool {
	return c.Lat != nil && c.Lon != nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Driver: CacheDriverSQLite,
			Path:   "./lookout.db",
			TTL:    24 * time.Hour,
		},
		Photo: PhotoConfig{
			Dir: "./photos",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
