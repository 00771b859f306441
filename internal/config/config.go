// Package config holds the warehouse connection settings. The struct is
// built once in main from the process environment (optionally seeded from a
// .env file) and passed down; nothing below main reads the environment again.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// ConfigError reports a missing or invalid connection parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the set of connection parameters for the target warehouse.
type Config struct {
	User     string
	Password string
	Database string
	Host     string
	Port     string
}

// FromEnv reads POSTGRES_* variables with the same defaults the job has
// always shipped with.
func FromEnv() *Config {
	return &Config{
		User:     envOr("POSTGRES_USER", "postgres"),
		Password: envOr("POSTGRES_PASSWORD", "postgres"),
		Database: envOr("POSTGRES_DB", "appdb"),
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envOr("POSTGRES_PORT", "5432"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate checks the parameters needed to assemble a DSN.
func (c *Config) Validate() error {
	if c.User == "" {
		return &ConfigError{Field: "user", Reason: "must not be empty"}
	}
	if c.Database == "" {
		return &ConfigError{Field: "database", Reason: "must not be empty"}
	}
	if c.Host == "" {
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("invalid port %q", c.Port)}
	}
	return nil
}

// DSN assembles a postgres connection URL. Credentials are URL-escaped so
// passwords with reserved characters survive.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	return u.String()
}

// LoadDotenv searches for a .env file in the working directory and its
// parents and loads it into the process environment. It returns the path of
// the file that was loaded, or "" when none was found. A missing .env is not
// an error; the job then runs on whatever the environment already holds.
func LoadDotenv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, ".env")
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			if err := godotenv.Load(path); err != nil {
				return "", fmt.Errorf("load %s: %w", path, err)
			}
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
