// Package geo resolves client addresses to a country name for display.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

const (
	// Unknown is reported when an address cannot be resolved.
	Unknown = "Unknown"

	// LocalDev is reported for loopback addresses.
	LocalDev = "Local Dev"

	// DefaultEndpoint is the ip-api.com JSON lookup prefix.
	DefaultEndpoint = "http://ip-api.com/json/"
)

// Options configures a Resolver.
type Options struct {
	Endpoint string
	Timeout  time.Duration
	CacheTTL time.Duration
	Cache    Cache
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Resolver looks up a country per address. It never returns an error:
// failures degrade to Unknown.
type Resolver struct {
	endpoint string
	client   *http.Client
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// lookupResponse is the subset of the ip-api.com response we use.
type lookupResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Message string `json:"message"`
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Resolver{
		endpoint: opts.Endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Resolve returns the country for addr.
func (r *Resolver) Resolve(ctx context.Context, addr string) string {
	ip := strings.TrimSpace(addr)
	if ip == "" {
		return Unknown
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return LocalDev
	}

	if country, ok := r.cache.Get(ctx, ip); ok {
		return country
	}

	country, err := r.lookup(ctx, ip)
	if err != nil {
		r.metrics.Inc(metrics.GeoLookupsFailed)
		r.logger.Debug("geolocation failed", "ip", ip, "err", err)
		return Unknown
	}

	if err := r.cache.Set(ctx, ip, country, r.ttl); err != nil {
		r.logger.Warn("failed to cache country", "ip", ip, "err", err)
	}
	return country
}

func (r *Resolver) lookup(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+url.PathEscape(ip), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return "", fmt.Errorf("lookup %s: %s", body.Status, body.Message)
	}
	if body.Country == "" {
		return "", fmt.Errorf("empty country")
	}
	return body.Country, nil
}

// ClientIP extracts the caller's address from r, preferring the first entry
// of X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
