package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values for the broker
const (
	DefaultPort           = 3001
	DefaultAllowedOrigins = "*"
	DefaultGeoEndpoint    = "http://ip-api.com/json/"
	DefaultGeoTimeout     = 3 * time.Second
	DefaultGeoCacheTTL    = time.Hour
	DefaultSignalRate     = 50.0
	DefaultSignalBurst    = 100
)

// ServerConfig holds the broker configuration
type ServerConfig struct {
	Port           int
	AllowedOrigins []string

	GeoEndpoint string
	GeoTimeout  time.Duration
	GeoCacheTTL time.Duration

	// RedisAddr enables the shared geo cache when set
	RedisAddr string

	// Per-connection inbound frame limit
	SignalRate  float64
	SignalBurst int
}

// ServerOptions carries CLI flag overrides. Zero values mean "not set".
type ServerOptions struct {
	Port           int
	AllowedOrigins string
	GeoEndpoint    string
	GeoTimeout     time.Duration
	GeoCacheTTL    time.Duration
	RedisAddr      string
	SignalRate     float64
	SignalBurst    int
}

// LoadServer reads broker configuration: CLI flag > env > default.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	port, err := pickInt(opts.Port, "PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: PORT %d out of range", ErrInvalid, port)
	}

	geoTimeout, err := pickDuration(opts.GeoTimeout, "GEO_TIMEOUT", DefaultGeoTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := pickDuration(opts.GeoCacheTTL, "GEO_CACHE_TTL", DefaultGeoCacheTTL)
	if err != nil {
		return nil, err
	}

	signalRate, err := pickFloat(opts.SignalRate, "SIGNAL_RATE", DefaultSignalRate)
	if err != nil {
		return nil, err
	}
	signalBurst, err := pickInt(opts.SignalBurst, "SIGNAL_BURST", DefaultSignalBurst)
	if err != nil {
		return nil, err
	}
	if signalRate <= 0 || signalBurst <= 0 {
		return nil, fmt.Errorf("%w: SIGNAL_RATE and SIGNAL_BURST must be positive", ErrInvalid)
	}

	origins := splitList(firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"), DefaultAllowedOrigins))
	if len(origins) == 0 {
		return nil, fmt.Errorf("%w: ALLOWED_ORIGINS lists no origins", ErrInvalid)
	}

	return &ServerConfig{
		Port:           port,
		AllowedOrigins: origins,
		GeoEndpoint:    firstNonEmpty(opts.GeoEndpoint, os.Getenv("GEO_ENDPOINT"), DefaultGeoEndpoint),
		GeoTimeout:     geoTimeout,
		GeoCacheTTL:    cacheTTL,
		RedisAddr:      firstNonEmpty(opts.RedisAddr, os.Getenv("REDIS_ADDR")),
		SignalRate:     signalRate,
		SignalBurst:    signalBurst,
	}, nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AllowsAnyOrigin reports whether the origin list is the wildcard.
func (c *ServerConfig) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func pickInt(flag int, key string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return v, nil
}

func pickFloat(flag float64, key string, def float64) (float64, error) {
	if flag != 0 {
		return flag, nil
	}
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return v, nil
}

func pickDuration(flag time.Duration, key string, def time.Duration) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
	}
	return v, nil
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
