// Package config reads service settings from the environment, with an optional
// .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/smokersim/internal/engine"
	"github.com/talgya/smokersim/internal/health"
	"github.com/talgya/smokersim/internal/history"
	"github.com/talgya/smokersim/internal/persistence"
)

// ErrUnsupportedDialect is returned for an unknown DB_DIALECT.
var ErrUnsupportedDialect = errors.New("unsupported DB_DIALECT")

// DialectNone disables the run journal.
const DialectNone persistence.Dialect = "none"

// DefaultSQLitePath is used when DB_SQLITE_PATH is unset.
var DefaultSQLitePath = filepath.Join("data", "smokersim.db")

// Config holds every runtime setting.
type Config struct {
	Addr          string
	TickInterval  time.Duration
	HistoryPoints int

	ControlKey  string
	OpenControl bool // allow unauthenticated control when ControlKey is unset
	StreamKey   string
	CORSOrigins []string

	Seed         int64
	HasSeed      bool
	RandomOrgKey string
	StressDrift  float64

	InitialAge        float64
	InitialCigarettes float64

	LogLevel slog.Level

	DBDialect persistence.Dialect
	DBDSN     string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:              ":8080",
		TickInterval:      engine.DefaultInterval,
		HistoryPoints:     history.DefaultPoints,
		InitialAge:        health.DefaultAge,
		InitialCigarettes: health.DefaultCigarettes,
		LogLevel:          slog.LevelInfo,
		DBDialect:         persistence.DialectSQLite,
		DBDSN:             DefaultSQLitePath,
	}
}

// Load reads an optional .env file, then the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables. Malformed numbers fall back
// to defaults with a warning; only the database settings can fail.
func FromEnv() (Config, error) {
	c := Default()

	if v := strings.TrimSpace(os.Getenv("SMOKERSIM_ADDR")); v != "" {
		c.Addr = v
	}
	if ms := envInt("SMOKERSIM_TICK_MS", 0); ms > 0 {
		c.TickInterval = time.Duration(ms) * time.Millisecond
	}
	if n := envInt("SMOKERSIM_HISTORY_POINTS", 0); n > 0 {
		c.HistoryPoints = n
	}

	c.ControlKey = os.Getenv("SMOKERSIM_CONTROL_KEY")
	if v := strings.TrimSpace(os.Getenv("SMOKERSIM_OPEN_CONTROL")); v != "" {
		if open, err := strconv.ParseBool(v); err == nil {
			c.OpenControl = open
		} else {
			slog.Warn("ignoring invalid SMOKERSIM_OPEN_CONTROL", "value", v)
		}
	}
	c.StreamKey = os.Getenv("SMOKERSIM_STREAM_KEY")
	c.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	if v := strings.TrimSpace(os.Getenv("SMOKERSIM_SEED")); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed, c.HasSeed = seed, true
		} else {
			slog.Warn("ignoring invalid SMOKERSIM_SEED", "value", v)
		}
	}
	c.RandomOrgKey = os.Getenv("RANDOM_ORG_API_KEY")
	c.StressDrift = envFloat("SMOKERSIM_STRESS_DRIFT", 0)

	c.InitialAge = health.SanitizeAge(envFloat("SMOKERSIM_INITIAL_AGE", health.DefaultAge))
	c.InitialCigarettes = health.SanitizeCigarettes(envFloat("SMOKERSIM_INITIAL_CIGARETTES", health.DefaultCigarettes))

	if v := strings.TrimSpace(os.Getenv("SMOKERSIM_LOG_LEVEL")); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			slog.Warn("ignoring invalid SMOKERSIM_LOG_LEVEL", "value", v)
			c.LogLevel = slog.LevelInfo
		}
	}

	dialect, dsn, err := databaseFromEnv()
	if err != nil {
		return Config{}, err
	}
	c.DBDialect, c.DBDSN = dialect, dsn
	return c, nil
}

func databaseFromEnv() (persistence.Dialect, string, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if raw == "" {
		raw = string(persistence.DialectSQLite)
	}

	switch d := persistence.Dialect(raw); d {
	case persistence.DialectSQLite:
		path := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if path == "" {
			path = DefaultSQLitePath
		}
		return d, path, nil
	case persistence.DialectPostgres:
		dsn := strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return "", "", fmt.Errorf("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL: %w", persistence.ErrMissingDSN)
		}
		return d, dsn, nil
	case DialectNone:
		return d, "", nil
	default:
		return "", "", fmt.Errorf("%w %q", ErrUnsupportedDialect, raw)
	}
}

// JournalEnabled reports whether runs should be persisted.
func (c Config) JournalEnabled() bool {
	return c.DBDialect != DialectNone
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", v)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid number setting", "key", key, "value", v)
		return def
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
