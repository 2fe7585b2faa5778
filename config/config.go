// Package config provides configuration management for the uaemulate proxy.
// It supports JSON configuration files, a .env file and UAEMU_* environment
// overrides, with safe defaults for every field.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
)

// Duration is a time.Duration that decodes from either a Go duration string
// ("30s", "1m") or a number of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x))
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", x, err)
		}
		*d = Duration(p)
	default:
		return fmt.Errorf("config: invalid duration %s", b)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds all tunable parameters of the proxy.
// It is loaded once at startup and then shared across goroutines as a
// read-only value.
type Config struct {
	// ListenAddr is the address the forward proxy listens on.
	ListenAddr string `json:"listen_addr"`

	// ProfilesFile is a JSON or YAML profile database.  Empty means the
	// built-in profiles.
	ProfilesFile string `json:"profiles_file"`

	// Optional forwards requests unmodified when no profile can be
	// selected instead of failing them.
	Optional bool `json:"optional"`

	// AutoDetectUserAgent steers profile selection by the request's own
	// User-Agent header.
	AutoDetectUserAgent bool `json:"auto_detect_user_agent"`

	// HeaderOrderHeader and OverwritesHeader name the optional metadata
	// headers clients may send.  Empty disables them.
	HeaderOrderHeader string `json:"header_order_header"`
	OverwritesHeader  string `json:"overwrites_header"`

	// SelectFallback is "none", "first" or "rotate".
	SelectFallback string `json:"select_fallback"`

	LogLevel string `json:"log_level"`

	// RequestTimeout is the end-to-end timeout for one upstream exchange,
	// from connection setup to the last byte of the response body.
	RequestTimeout Duration `json:"request_timeout"`

	// ProxyFile is a newline-delimited list of upstream proxies.  Leave
	// empty to connect directly.
	ProxyFile string `json:"proxy_file"`

	// RatePerSecond limits forwarded requests; zero disables the limiter.
	RatePerSecond float64 `json:"rate_per_second"`
	RateBurst     int     `json:"rate_burst"`

	// MetricsInterval is how often serve logs a metrics summary; zero
	// disables it.
	MetricsInterval Duration `json:"metrics_interval"`
}

// LoadConfig reads the JSON file at filename over DefaultConfig, so fields
// absent from the file keep their defaults.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}

// DefaultConfig returns a *Config pre-filled with defaults.  Each call
// returns a fresh copy.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          "127.0.0.1:8080",
		AutoDetectUserAgent: true,
		HeaderOrderHeader:   "x-uaemulate-header-order",
		OverwritesHeader:    "x-uaemulate-overwrites",
		SelectFallback:      "rotate",
		LogLevel:            "info",
		RequestTimeout:      Duration(30 * time.Second),
		RateBurst:           1,
		MetricsInterval:     Duration(time.Minute),
	}
}

// envPrefix prefixes every environment override.
const envPrefix = "UAEMU_"

// LoadFromEnv loads a .env file from the working directory, if there is
// one, and then applies UAEMU_* environment variables on top of c.
// Variables already set in the environment win over the .env file.
func (c *Config) LoadFromEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("PROFILES_FILE", &c.ProfilesFile)
	boolean("OPTIONAL", &c.Optional)
	boolean("AUTO_DETECT_USER_AGENT", &c.AutoDetectUserAgent)
	str("HEADER_ORDER_HEADER", &c.HeaderOrderHeader)
	str("OVERWRITES_HEADER", &c.OverwritesHeader)
	str("SELECT_FALLBACK", &c.SelectFallback)
	str("LOG_LEVEL", &c.LogLevel)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	str("PROXY_FILE", &c.ProxyFile)
	duration("METRICS_INTERVAL", &c.MetricsInterval)
	if v, ok := os.LookupEnv(envPrefix + "RATE_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sRATE_PER_SECOND: %w", envPrefix, err))
		} else {
			c.RatePerSecond = f
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %sRATE_BURST: %w", envPrefix, err))
		} else {
			c.RateBurst = n
		}
	}
	return errors.Join(errs...)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("config: listen_addr is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive, got %s", time.Duration(c.RequestTimeout))
	}
	if c.MetricsInterval < 0 {
		return fmt.Errorf("config: metrics_interval must not be negative, got %s", time.Duration(c.MetricsInterval))
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("config: rate_per_second must not be negative, got %v", c.RatePerSecond)
	}
	if c.RatePerSecond > 0 && c.RateBurst < 1 {
		return fmt.Errorf("config: rate_burst must be at least 1 when rate limiting, got %d", c.RateBurst)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if _, err := c.Fallback(); err != nil {
		return err
	}
	return nil
}

// Fallback parses SelectFallback.
func (c *Config) Fallback() (fingerprint.SelectFallback, error) {
	f, err := fingerprint.ParseSelectFallback(c.SelectFallback)
	if err != nil {
		return fingerprint.FallbackNone, fmt.Errorf("config: select_fallback: %w", err)
	}
	return f, nil
}
