package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/security"
)

// configName is the config file name without extension.
const configName = ".freerider"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. FREERIDER_GITHUB_TOKEN.
const envPrefix = "FREERIDER"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":       "port",
	"data-dir":   "data-dir",
	"log-level":  "log.level",
	"db-backend": "db.backend",
	"db-dsn":     "db.dsn",
}

// Load reads configuration from defaults, the config file, environment
// variables and flags, in increasing order of precedence. If configPath is
// empty the file is searched in CWD and $HOME; a missing file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	sec := security.DefaultSecurityConfig()

	v.SetDefault("port", "8080")
	v.SetDefault("data-dir", "data")

	v.SetDefault("db.backend", string(database.BackendSQLite))
	v.SetDefault("db.dsn", "")

	v.SetDefault("github.token", "")
	v.SetDefault("github.base-url", "")
	v.SetDefault("github.workers", analysis.DefaultFetchWorkers)
	v.SetDefault("github.requests-per-second", 1.25)
	v.SetDefault("github.burst", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.ip-per-minute", 60)

	v.SetDefault("security.max-identifier-length", sec.MaxIdentifierLength)
	v.SetDefault("security.max-body-bytes", sec.MaxBodyBytes)
	v.SetDefault("security.allowed-origins", sec.AllowedOrigins)
	v.SetDefault("security.request-timeout", sec.RequestTimeout)
	v.SetDefault("security.jwt-secret", "")
	v.SetDefault("security.enable-hsts", false)

	v.SetDefault("analysis.threshold", analysis.DefaultThreshold)
	v.SetDefault("analysis.noise-prefixes", analysis.DefaultNoisePrefixes)
	v.SetDefault("analysis.aliases", []AliasEntry{})
	v.SetDefault("analysis.max-messages", analysis.DefaultMaxMessages)

	v.SetDefault("log.level", "info")

	v.SetDefault("cache.ttl", 5*time.Minute)
}
