// Package config holds the immutable per-connection session configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session is the validated connection configuration. It is created once
// from CLI/env input and never mutated afterwards.
type Session struct {
	Host        string
	Port        int
	User        string
	Password    string
	Secure      bool // explicit FTPS (AUTH TLS)
	Passive     bool
	Timeout     time.Duration
	DownloadDir string
}

// Defaults returns a Session populated with the documented defaults.
func Defaults() Session {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Session{
		Port:        21,
		User:        "anonymous",
		Passive:     true,
		Timeout:     10 * time.Second,
		DownloadDir: wd,
	}
}

// LoadEnv merges FLIT_* environment variables (optionally from a .env file)
// over the defaults. Unset variables leave the defaults untouched.
func LoadEnv() Session {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables only")
	}

	s := Defaults()
	s.Host = getEnv("FLIT_HOST", s.Host)
	s.User = getEnv("FLIT_USER", s.User)
	s.Password = getEnv("FLIT_PASSWORD", s.Password)
	s.DownloadDir = getEnv("FLIT_DOWNLOAD_DIR", s.DownloadDir)
	if v := os.Getenv("FLIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv("FLIT_SECURE"); v != "" {
		s.Secure = v == "1" || v == "true"
	}
	if v := os.Getenv("FLIT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			s.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return s
}

// Validate checks the configuration before any connection is attempted.
func (s Session) Validate() error {
	if s.Host == "" {
		return errors.New("host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port number %d", s.Port)
	}
	if s.User == "" {
		return errors.New("user is required")
	}
	if s.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	info, err := os.Stat(s.DownloadDir)
	if err != nil {
		return fmt.Errorf("download dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("download dir %s is not a directory", s.DownloadDir)
	}
	return nil
}

// Addr returns the dial address for the control connection.
func (s Session) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
