// Package config loads huddle's settings. Defaults are overridden by a TOML
// file, then by HUDDLE_* environment variables; flags are applied last by
// the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

const envPrefix = "HUDDLE_"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Store       StoreConfig       `toml:"store"`
	ICE         ICEConfig         `toml:"ice"`
	Negotiation NegotiationConfig `toml:"negotiation"`
	Log         LogConfig         `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type StoreConfig struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

type ICEConfig struct {
	STUN           []string `toml:"stun"`
	TURNURL        string   `toml:"turn_url"`
	TURNUsername   string   `toml:"turn_username"`
	TURNCredential string   `toml:"turn_credential"`
}

type NegotiationConfig struct {
	DisconnectGrace time.Duration `toml:"disconnect_grace"`
	// MaxICERestarts of zero means the default; negative disables restarts.
	MaxICERestarts int           `toml:"max_ice_restarts"`
	CaptureRetries int           `toml:"capture_retries"`
	CaptureBackoff time.Duration `toml:"capture_backoff"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendMemory,
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017/?replicaSet=rs0",
			MongoDatabase: "huddle",
		},
		ICE: ICEConfig{
			STUN: []string{"stun:stun.l.google.com:19302"},
		},
		Negotiation: NegotiationConfig{
			DisconnectGrace: 5 * time.Second,
			MaxICERestarts:  3,
			CaptureRetries:  2,
			CaptureBackoff:  250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path when it is not empty and applies the environment on top.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envOr("ADDR", c.Server.Addr)
	c.Server.AllowedOrigins = envCSV("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Backend = envOr("STORE", c.Store.Backend)
	c.Store.RedisAddr = envOr("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = envOr("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = envInt("REDIS_DB", c.Store.RedisDB)
	c.Store.MongoURI = envOr("MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDatabase = envOr("MONGO_DATABASE", c.Store.MongoDatabase)

	c.ICE.STUN = envCSV("STUN_URLS", c.ICE.STUN)
	c.ICE.TURNURL = envOr("TURN_URL", c.ICE.TURNURL)
	c.ICE.TURNUsername = envOr("TURN_USERNAME", c.ICE.TURNUsername)
	c.ICE.TURNCredential = envOr("TURN_CREDENTIAL", c.ICE.TURNCredential)

	c.Negotiation.DisconnectGrace = envDuration("DISCONNECT_GRACE", c.Negotiation.DisconnectGrace)
	c.Negotiation.MaxICERestarts = envInt("MAX_ICE_RESTARTS", c.Negotiation.MaxICERestarts)
	c.Negotiation.CaptureRetries = envInt("CAPTURE_RETRIES", c.Negotiation.CaptureRetries)
	c.Negotiation.CaptureBackoff = envDuration("CAPTURE_BACKOFF", c.Negotiation.CaptureBackoff)

	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Negotiation.DisconnectGrace < 0 || c.Negotiation.CaptureBackoff < 0 {
		errs = append(errs, errors.New("negotiation durations cannot be negative"))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s%s=%s, fallback to %d\n", envPrefix, key, v, def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s%s=%s, fallback to %s\n", envPrefix, key, v, def)
		return def
	}
	return d
}

func envCSV(key string, def []string) []string {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
