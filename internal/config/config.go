// Package config loads CLI and server settings from flags, JOBBOARD_*
// environment variables, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "JOBBOARD"
	configFileName = "jobboard"
	configFileType = "yaml"
)

type Config struct {
	// Backend is postgres, sqlite, postgrest, memory, none or auto.
	Backend    string         `mapstructure:"backend"`
	PageSize   int            `mapstructure:"page_size"`
	FieldsFile string         `mapstructure:"fields_file"`
	Supabase   SupabaseConfig `mapstructure:"supabase"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	SQLite     SQLiteConfig   `mapstructure:"sqlite"`
	Log        LogConfig      `mapstructure:"log"`
	HTTP       HTTPConfig     `mapstructure:"http"`
}

type SupabaseConfig struct {
	URL               string  `mapstructure:"url"`
	AnonKey           string  `mapstructure:"anon_key"`
	Schema            string  `mapstructure:"schema"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type PostgresConfig struct {
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

type SQLiteConfig struct {
	Path   string `mapstructure:"path"`
	Driver string `mapstructure:"driver"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"backend":         "backend",
	"page-size":       "page_size",
	"fields-file":     "fields_file",
	"supabase-url":    "supabase.url",
	"supabase-key":    "supabase.anon_key",
	"supabase-schema": "supabase.schema",
	"rate-limit":      "supabase.requests_per_second",
	"pg-dsn":          "postgres.dsn",
	"pg-schema":       "postgres.schema",
	"sqlite-path":     "sqlite.path",
	"sqlite-driver":   "sqlite.driver",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"addr":            "http.addr",
	"cors-origin":     "http.cors_origins",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "auto")
	v.SetDefault("page_size", 20)
	v.SetDefault("fields_file", "")
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.schema", "")
	v.SetDefault("supabase.requests_per_second", 10.0)
	v.SetDefault("supabase.burst", 5)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.schema", "")
	v.SetDefault("sqlite.path", "")
	v.SetDefault("sqlite.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
}

// BindFlags declares the configuration flags on fs. Defaults live in viper,
// so flags only override when set.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("backend", "", "backend: auto|postgres|sqlite|postgrest|memory|none")
	fs.Int("page-size", 0, "default page size")
	fs.String("fields-file", "", "YAML file with extra column fallbacks")
	fs.String("supabase-url", "", "Supabase project URL")
	fs.String("supabase-key", "", "Supabase anon key")
	fs.String("supabase-schema", "", "exposed schema (Accept-Profile)")
	fs.Float64("rate-limit", 0, "max PostgREST requests per second")
	fs.String("pg-dsn", "", "postgres DSN")
	fs.String("pg-schema", "", "postgres schema put first on search_path")
	fs.String("sqlite-path", "", "sqlite database file")
	fs.String("sqlite-driver", "", "sqlite driver: sqlite (pure Go) or sqlite3 (cgo)")
	fs.String("log-level", "", "log level: debug|info|warn|error")
	fs.String("log-format", "", "log format: text|json")
}

// BindServeFlags declares the HTTP server flags.
func BindServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "listen address")
	fs.StringSlice("cors-origin", nil, "allowed CORS origin (repeatable)")
}

type LoadOptions struct {
	// File is an explicit config file; empty searches ./jobboard.yaml and
	// ~/.config/jobboard/jobboard.yaml.
	File string
	// EnvFile is loaded into the environment first; empty tries ./.env.
	EnvFile string
	Flags   *pflag.FlagSet
}

func Load(opts LoadOptions) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		// A missing .env is fine.
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Supabase's own variable names are honoured too.
	_ = v.BindEnv("supabase.url", EnvPrefix+"_SUPABASE_URL", "SUPABASE_URL")
	_ = v.BindEnv("supabase.anon_key", EnvPrefix+"_SUPABASE_ANON_KEY", "SUPABASE_ANON_KEY")
	_ = v.BindEnv("postgres.dsn", EnvPrefix+"_POSTGRES_DSN", "DATABASE_URL")

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/jobboard")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Backend = cfg.resolveBackend()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveBackend picks a backend for "auto" from whichever connection
// settings are present, preferring Supabase.
func (c Config) resolveBackend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	switch b {
	case "auto":
		switch {
		case c.Supabase.URL != "" && c.Supabase.AnonKey != "":
			return "postgrest"
		case c.Postgres.DSN != "":
			return "postgres"
		case c.SQLite.Path != "":
			return "sqlite"
		default:
			return ""
		}
	case "none":
		return ""
	default:
		return b
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case "", "postgres", "sqlite", "postgrest", "memory":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == "postgrest" && (c.Supabase.URL == "" || c.Supabase.AnonKey == "") {
		return errors.New("postgrest backend needs supabase.url and supabase.anon_key")
	}
	if c.Backend == "postgres" && c.Postgres.DSN == "" {
		return errors.New("postgres backend needs postgres.dsn")
	}
	if c.Backend == "sqlite" && c.SQLite.Path == "" {
		return errors.New("sqlite backend needs sqlite.path")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("page_size must be between 1 and 100, got %d", c.PageSize)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
