// Package config defines the veriface configuration and how it is loaded.
package config

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/logger"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Backends lists every accepted storage backend.
var Backends = []string{BackendPostgres, BackendSQLite, BackendMemory}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Backend selects the identity store.
	Backend     string `koanf:"backend"`
	DatabaseURL string `koanf:"database_url"`
	SQLitePath  string `koanf:"sqlite_path"`

	// Profile names the frozen matching configuration, e.g. "v1".
	Profile string `koanf:"profile"`
	// Workers bounds parallel candidate scoring.
	Workers int `koanf:"workers"`
	// Dimensions overrides the profile's expected descriptor length. 0 keeps it.
	Dimensions int `koanf:"dimensions"`

	// Timezone and LateAfter ("HH:MM") drive the attendance cutoff.
	Timezone  string `koanf:"timezone"`
	LateAfter string `koanf:"late_after"`

	PythonBin          string        `koanf:"python_bin"`
	WorkerScript       string        `koanf:"worker_script"`
	EmbedWorkers       int           `koanf:"embed_workers"`
	EmbedTimeout       time.Duration `koanf:"embed_timeout"`
	DetectionThreshold float64       `koanf:"detection_threshold"`
	MaxImageSize       int           `koanf:"max_image_size"`

	// MetricsFile, when set, receives a Prometheus textfile dump at exit.
	MetricsFile string `koanf:"metrics_file"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Backend:            BackendPostgres,
		SQLitePath:         "veriface.db",
		Profile:            biometric.DefaultProfile,
		Workers:            runtime.NumCPU(),
		Timezone:           "Asia/Manila",
		LateAfter:          "09:00",
		PythonBin:          "python3",
		WorkerScript:       "python/embed.py",
		EmbedWorkers:       1,
		EmbedTimeout:       60 * time.Second,
		DetectionThreshold: 0.5,
		MaxImageSize:       1600,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("%w: unknown backend %q (want one of %v)", ErrInvalidConfig, c.Backend, Backends)
	}
	if c.Backend == BackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	}
	if _, err := biometric.ProfileByName(c.Profile); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.EmbedWorkers <= 0 {
		return fmt.Errorf("%w: embed_workers must be positive, got %d", ErrInvalidConfig, c.EmbedWorkers)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("%w: dimensions must not be negative", ErrInvalidConfig)
	}
	if c.MaxImageSize < 0 {
		return fmt.Errorf("%w: max_image_size must not be negative", ErrInvalidConfig)
	}
	if c.EmbedTimeout < 0 {
		return fmt.Errorf("%w: embed_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.Cutoff(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Cutoff parses LateAfter into hour and minute.
func (c *Config) Cutoff() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.LateAfter)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: late_after %q must be HH:MM", ErrInvalidConfig, c.LateAfter)
	}
	return t.Hour(), t.Minute(), nil
}

// BiometricProfile returns the named profile with any dimension override applied.
func (c *Config) BiometricProfile() (biometric.Profile, error) {
	p, err := biometric.ProfileByName(c.Profile)
	if err != nil {
		return biometric.Profile{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Dimensions > 0 {
		p = p.WithDimensions(c.Dimensions)
	}
	return p, nil
}

// postgresURLFromEnv builds a connection string from the POSTGRES_* variables
// used by docker-compose, falling back to a local default.
func postgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/veriface"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
