package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/freerider"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/security"
)

// Config is the top-level service configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Port      string                  `mapstructure:"port"`
	DataDir   string                  `mapstructure:"data-dir"`
	DB        database.Config         `mapstructure:"db"`
	GitHub    GitHubConfig            `mapstructure:"github"`
	Redis     ratelimit.RedisConfig   `mapstructure:"redis"`
	RateLimit RateLimitConfig         `mapstructure:"ratelimit"`
	Security  security.SecurityConfig `mapstructure:"security"`
	Analysis  AnalysisConfig          `mapstructure:"analysis"`
	Log       LogConfig               `mapstructure:"log"`
	Cache     CacheConfig             `mapstructure:"cache"`
}

// GitHubConfig holds hosting API access and outbound budget settings.
type GitHubConfig struct {
	Token             string  `mapstructure:"token"`
	BaseURL           string  `mapstructure:"base-url"`
	Workers           int     `mapstructure:"workers"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
	Burst             int     `mapstructure:"burst"`
}

// RateLimitConfig holds inbound request limits.
type RateLimitConfig struct {
	IPPerMinute int `mapstructure:"ip-per-minute"`
}

// AliasEntry maps one commit author name to a contributor login. Aliases
// are a list rather than a map because viper lower-cases map keys.
type AliasEntry struct {
	Author string `mapstructure:"author"`
	Login  string `mapstructure:"login"`
}

// AnalysisConfig holds the scoring parameters.
type AnalysisConfig struct {
	Threshold     float64      `mapstructure:"threshold"`
	NoisePrefixes []string     `mapstructure:"noise-prefixes"`
	Aliases       []AliasEntry `mapstructure:"aliases"`
	MaxMessages   int          `mapstructure:"max-messages"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CacheConfig holds report cache settings.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Sentinel validation errors.
var (
	ErrInvalidPort           = errors.New("port must be a number between 1 and 65535")
	ErrInvalidThreshold      = errors.New("analysis.threshold must be in (0, 1]")
	ErrInvalidWorkers        = errors.New("github.workers must be positive")
	ErrInvalidRequestRate    = errors.New("github.requests-per-second must not be negative")
	ErrInvalidIPLimit        = errors.New("ratelimit.ip-per-minute must not be negative")
	ErrInvalidCacheTTL       = errors.New("cache.ttl must be positive")
	ErrInvalidLogLevel       = errors.New("log.level must be debug, info, warn or error")
	ErrInvalidAlias          = errors.New("analysis.aliases entries need both author and login")
	ErrMissingDSN            = errors.New("db.dsn is required for the postgres and mysql backends")
	ErrInvalidMaxMessages    = errors.New("analysis.max-messages must not be negative")
	ErrInvalidRequestTimeout = errors.New("security.request-timeout must not be negative")
)

// Validate checks the loaded configuration for invalid values.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.Port)
	}

	backend, err := database.ParseBackend(string(c.DB.Backend))
	if err != nil {
		return err
	}
	if backend != database.BackendSQLite && c.DB.DSN == "" {
		return ErrMissingDSN
	}

	if c.Analysis.Threshold <= 0 || c.Analysis.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if c.Analysis.MaxMessages < 0 {
		return ErrInvalidMaxMessages
	}
	for _, a := range c.Analysis.Aliases {
		if strings.TrimSpace(a.Author) == "" || strings.TrimSpace(a.Login) == "" {
			return ErrInvalidAlias
		}
	}

	if c.GitHub.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return ErrInvalidRequestRate
	}
	if c.RateLimit.IPPerMinute < 0 {
		return ErrInvalidIPLimit
	}
	if c.Cache.TTL <= 0 {
		return ErrInvalidCacheTTL
	}
	if c.Security.RequestTimeout < 0 {
		return ErrInvalidRequestTimeout
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	return nil
}

// Database returns the database settings with the data directory applied.
func (c *Config) Database() database.Config {
	db := c.DB
	db.DataDir = c.DataDir
	return db
}

// Limits returns the rate limiter settings.
func (c *Config) Limits() ratelimit.Config {
	limits := ratelimit.DefaultConfig()
	limits.IPLimitPerMin = c.RateLimit.IPPerMinute
	limits.OutboundPerSecond = c.GitHub.RequestsPerSecond
	if c.GitHub.Burst > 0 {
		limits.OutboundBurst = c.GitHub.Burst
	}
	return limits
}

// FreeRider returns the analysis settings of the free-rider service.
// Without configured aliases the built-in table applies.
func (c *Config) FreeRider() freerider.Config {
	aliases := analysis.DefaultAliases
	if len(c.Analysis.Aliases) > 0 {
		aliases = make(map[string]string, len(c.Analysis.Aliases))
		for _, a := range c.Analysis.Aliases {
			aliases[a.Author] = a.Login
		}
	}

	return freerider.Config{
		Threshold:     c.Analysis.Threshold,
		Aliases:       aliases,
		NoisePrefixes: c.Analysis.NoisePrefixes,
		MaxMessages:   c.Analysis.MaxMessages,
		Workers:       c.GitHub.Workers,
	}
}
