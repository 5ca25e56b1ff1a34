// Package config loads server and client settings through viper: built-in
// defaults, an optional YAML file, GOPHSTORAGE_* environment variables and
// bound command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "GOPHSTORAGE"

// Server keys
const (
	KeyListen          = "listen"
	KeyWorldDriver     = "world.driver"
	KeyWorldDSN        = "world.dsn"
	KeyWorldSeed       = "world.seed"
	KeyCatalogPath     = "catalog.path"
	KeyIdentitySecret  = "identity.secret"
	KeyIdentityTTL     = "identity.token_ttl"
	KeyTerminalTTL     = "terminal.ttl"
	KeyTerminalTick    = "terminal.tick"
	KeyTerminalOpCache = "terminal.op_cache"
	KeyDefaultRadius   = "terminal.default_radius"
	KeyMaxRadius       = "terminal.max_radius"
	KeyAuditDir        = "audit.dir"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

// Client keys
const (
	KeyServer  = "server"
	KeyDB      = "db"
	KeyColumns = "columns"
	KeyTimeout = "timeout"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Server is the authority process configuration
type Server struct {
	Listen   string
	World    World
	Catalog  string
	Identity Identity
	Terminal Terminal
	AuditDir string
	Log      Log
}

type World struct {
	Driver string
	DSN    string
	Seed   string
}

type Identity struct {
	Secret   string
	TokenTTL time.Duration
}

type Terminal struct {
	ReservationTTL time.Duration
	Tick           time.Duration
	OpCache        int
	DefaultRadius  float64
	MaxRadius      float64
}

type Log struct {
	Level  string
	Format string
}

// Client is the CLI configuration
type Client struct {
	Server  string
	DB      string
	Columns int
	Timeout time.Duration
	Catalog string
	Log     Log
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewServerViper returns a viper instance with server defaults
func NewServerViper() *viper.Viper {
	v := newViper()
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyWorldDriver, DriverMemory)
	v.SetDefault(KeyWorldDSN, "")
	v.SetDefault(KeyWorldSeed, "")
	v.SetDefault(KeyCatalogPath, "")
	v.SetDefault(KeyIdentitySecret, "")
	v.SetDefault(KeyIdentityTTL, 24*time.Hour)
	v.SetDefault(KeyTerminalTTL, 30*time.Second)
	v.SetDefault(KeyTerminalTick, time.Second)
	v.SetDefault(KeyTerminalOpCache, 2048)
	v.SetDefault(KeyDefaultRadius, 10.0)
	v.SetDefault(KeyMaxRadius, 32.0)
	v.SetDefault(KeyAuditDir, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	return v
}

// NewClientViper returns a viper instance with client defaults
func NewClientViper() *viper.Viper {
	v := newViper()
	v.SetDefault(KeyServer, "http://localhost:8080")
	v.SetDefault(KeyDB, "gophstorage-client.db")
	v.SetDefault(KeyColumns, 8)
	v.SetDefault(KeyTimeout, 10*time.Second)
	v.SetDefault(KeyCatalogPath, "")
	v.SetDefault(KeyLogLevel, "error")
	v.SetDefault(KeyLogFormat, "text")
	return v
}

// ReadFile merges a YAML config file into v; an empty path is a no-op
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// ServerFromViper builds and validates the server configuration
func ServerFromViper(v *viper.Viper) (*Server, error) {
	cfg := &Server{
		Listen: v.GetString(KeyListen),
		World: World{
			Driver: strings.ToLower(v.GetString(KeyWorldDriver)),
			DSN:    v.GetString(KeyWorldDSN),
			Seed:   v.GetString(KeyWorldSeed),
		},
		Catalog: v.GetString(KeyCatalogPath),
		Identity: Identity{
			Secret:   v.GetString(KeyIdentitySecret),
			TokenTTL: v.GetDuration(KeyIdentityTTL),
		},
		Terminal: Terminal{
			ReservationTTL: v.GetDuration(KeyTerminalTTL),
			Tick:           v.GetDuration(KeyTerminalTick),
			OpCache:        v.GetInt(KeyTerminalOpCache),
			DefaultRadius:  v.GetFloat64(KeyDefaultRadius),
			MaxRadius:      v.GetFloat64(KeyMaxRadius),
		},
		AuditDir: v.GetString(KeyAuditDir),
		Log: Log{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server configuration
func (c *Server) Validate() error {
	switch c.World.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.World.DSN == "" {
			return fmt.Errorf("%w: %s is required for the sqlite driver", ErrInvalidConfig, KeyWorldDSN)
		}
	default:
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, KeyWorldDriver, c.World.Driver)
	}

	if c.Identity.TokenTTL <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyIdentityTTL)
	}
	if c.Terminal.ReservationTTL <= 0 || c.Terminal.Tick <= 0 {
		return fmt.Errorf("%w: %s and %s must be positive", ErrInvalidConfig, KeyTerminalTTL, KeyTerminalTick)
	}
	if c.Terminal.OpCache <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyTerminalOpCache)
	}
	if c.Terminal.DefaultRadius <= 0 || c.Terminal.MaxRadius < c.Terminal.DefaultRadius {
		return fmt.Errorf("%w: need 0 < %s <= %s", ErrInvalidConfig, KeyDefaultRadius, KeyMaxRadius)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ClientFromViper builds the client configuration
func ClientFromViper(v *viper.Viper) (*Client, error) {
	cfg := &Client{
		Server:  strings.TrimRight(v.GetString(KeyServer), "/"),
		DB:      v.GetString(KeyDB),
		Columns: v.GetInt(KeyColumns),
		Timeout: v.GetDuration(KeyTimeout),
		Catalog: v.GetString(KeyCatalogPath),
		Log: Log{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if cfg.Server == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyServer)
	}
	if cfg.DB == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyDB)
	}
	if cfg.Columns <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyColumns)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyTimeout)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}
