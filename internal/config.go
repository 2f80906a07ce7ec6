package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/scan"
	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Write modes.
const (
	WriteModeEmbedded = "embedded"
	WriteModeSidecar  = "sidecar"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Library LibraryConfig     `yaml:"library"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Dates   DatesConfig       `yaml:"dates"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Dates.Validate(); err != nil {
		return err
	}
	if err := c.Events.Validate(); err != nil {
		return err
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

// LibraryConfig describes the media library on disk.
type LibraryConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
	WriteMode  string   `yaml:"write_mode"`
	Padding    int      `yaml:"padding"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	if c.WriteMode == "" {
		c.WriteMode = WriteModeEmbedded
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extensions, validation.Each(validation.Required, validation.By(isExtension))),
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
		validation.Field(&c.WriteMode, validation.In(WriteModeEmbedded, WriteModeSidecar)),
		validation.Field(&c.Padding, validation.Min(0), validation.Max(1<<20)),
	)
}

func isExtension(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return fmt.Errorf("must start with a dot, e.g. .jpg")
	}
	if strings.EqualFold(s, ".xmp") {
		return fmt.Errorf("sidecars are not media files")
	}
	return nil
}

// StorageOptions returns the storage options for the configured extensions.
func (c *LibraryConfig) StorageOptions() []storage.Option {
	if len(c.Extensions) == 0 {
		return nil
	}
	return []storage.Option{storage.WithExtensions(c.Extensions)}
}

// FileStoreOptions returns the metadata store options for the configured
// write mode and padding.
func (c *LibraryConfig) FileStoreOptions() ([]xmp.FileOption, error) {
	mode, err := xmp.ParseWriteMode(c.WriteMode)
	if err != nil {
		return nil, err
	}
	opts := []xmp.FileOption{xmp.WithWriteMode(mode)}
	if c.Padding > 0 {
		opts = append(opts, xmp.WithPadding(c.Padding))
	}
	return opts, nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DatesConfig selects how conflicting date fields are resolved.
//
// Precedence is "last" (the highest-priority field present wins, default)
// or "first".
type DatesConfig struct {
	Precedence string `yaml:"precedence"`
}

// Validate validates the dates configuration.
func (c *DatesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Precedence, validation.By(func(v any) error {
			_, err := dates.ParsePrecedence(v.(string))
			return err
		})),
	)
}

// Resolver returns the date resolver for the configured precedence.
func (c *DatesConfig) Resolver() dates.Resolver {
	p, err := dates.ParsePrecedence(c.Precedence)
	if err != nil {
		p = dates.DefaultPrecedence
	}
	return dates.Resolver{Precedence: p}
}

// EventsConfig tunes the server-sent event stream.
type EventsConfig struct {
	TagsThrottle time.Duration `yaml:"tags_throttle"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TagsThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.Heartbeat, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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
		Library: LibraryConfig{
			Path:      "./library",
			Workers:   scan.DefaultWorkers,
			WriteMode: WriteModeEmbedded,
			Padding:   xmp.DefaultPadding,
		},
		SQLite: SQLiteConfig{
			Path: "./mediatag.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Dates: DatesConfig{
			Precedence: dates.DefaultPrecedence.String(),
		},
		Events: EventsConfig{
			TagsThrottle: 2 * time.Second,
		},
	}
}
