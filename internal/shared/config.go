package shared

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Conversion  ConversionConfig  `toml:"conversion"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// YouTubeConfig controls where the imported YouTube Music session is persisted.
type YouTubeConfig struct {
	ArtifactBackend string        `toml:"artifact_backend"` // file or keyring
	ArtifactPath    string        `toml:"artifact_path"`
	WatchArtifact   bool          `toml:"watch_artifact"`
	LivenessTTL     time.Duration `toml:"liveness_ttl"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server and session cookie settings.
type ServerConfig struct {
	Host          string        `toml:"host"`
	Port          int           `toml:"port"`
	SessionSecret string        `toml:"session_secret"`
	SessionCookie string        `toml:"session_cookie"`
	SessionMaxAge time.Duration `toml:"session_max_age"`
	SameSite      string        `toml:"same_site"`
	CookieSecure  bool          `toml:"cookie_secure"`
}

// ConversionConfig tunes the conversion pipeline.
type ConversionConfig struct {
	RequestTimeout time.Duration `toml:"request_timeout"`
	ConvertTimeout time.Duration `toml:"convert_timeout"`
	Concurrency    int           `toml:"concurrency"`
	SearchRate     float64       `toml:"search_rate"`
	RetryCount     int           `toml:"retry_count"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SameSiteMode converts the configured SameSite policy to an [http.SameSite] value.
func (s ServerConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(s.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
// The environment overlay is applied in both cases.
func LoadConfigOrDefault(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables (optionally loaded from a .env file in the working directory) onto the config.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to load .env: %v", ErrInvalidConfig, err)
	}

	setString(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Credentials.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	setString(&c.Server.SessionSecret, "SECRET_KEY")
	setString(&c.Server.SessionCookie, "SESSION_COOKIE_NAME")
	setString(&c.Server.SameSite, "SESSION_COOKIE_SAMESITE")
	setString(&c.Database.Path, "SONGBRIDGE_DB")

	if v := os.Getenv("SESSION_MAX_AGE"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SESSION_MAX_AGE must be seconds: %v", ErrInvalidConfig, err)
		}
		c.Server.SessionMaxAge = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: SESSION_COOKIE_SECURE: %v", ErrInvalidConfig, err)
		}
		c.Server.CookieSecure = secure
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the settings the web service cannot run without.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientID == "your_spotify_client_id" {
		return fmt.Errorf("%w: credentials.spotify.client_id is not set", ErrInvalidConfig)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: credentials.spotify.redirect_uri is not set", ErrInvalidConfig)
	}

	switch c.Credentials.YouTube.ArtifactBackend {
	case "file":
		if c.Credentials.YouTube.ArtifactPath == "" {
			return fmt.Errorf("%w: credentials.youtube.artifact_path is required for the file backend", ErrInvalidConfig)
		}
	case "keyring":
	default:
		return fmt.Errorf("%w: unknown artifact_backend %q", ErrInvalidConfig, c.Credentials.YouTube.ArtifactBackend)
	}

	if c.Conversion.Concurrency < 1 {
		return fmt.Errorf("%w: conversion.concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Conversion.RequestTimeout <= 0 {
		return fmt.Errorf("%w: conversion.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Conversion.RetryCount < 0 {
		return fmt.Errorf("%w: conversion.retry_count must not be negative", ErrInvalidConfig)
	}

	return nil
}

// EnsureSessionSecret generates a random session secret when none is configured.
//
// Returns true when a secret was generated; such sessions do not survive a restart.
func (c *Config) EnsureSessionSecret() bool {
	if c.Server.SessionSecret != "" {
		return false
	}

	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	c.Server.SessionSecret = base64.RawURLEncoding.EncodeToString(buf)
	return true
}
