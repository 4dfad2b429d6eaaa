package geo

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// ipAPI fakes ip-api.com, answering from countries by path.
func ipAPI(t *testing.T, countries map[string]string, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		ip := strings.TrimPrefix(r.URL.Path, "/json/")
		w.Header().Set("Content-Type", "application/json")
		country, ok := countries[ip]
		if !ok {
			w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
			return
		}
		w.Write([]byte(`{"status":"success","country":"` + country + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolver_Resolve(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPI(t, map[string]string{"203.0.113.7": "Kenya"}, &hits)
	m := metrics.New()

	r := NewResolver(Options{
		Endpoint: srv.URL + "/json/",
		Logger:   testLogger(),
		Metrics:  m,
	})

	tests := []struct {
		name string
		addr string
		want string
	}{
		{name: "resolved", addr: "203.0.113.7", want: "Kenya"},
		{name: "lookup failure", addr: "10.0.0.1", want: Unknown},
		{name: "empty address", addr: "", want: Unknown},
		{name: "ipv4 loopback", addr: "127.0.0.1", want: LocalDev},
		{name: "ipv6 loopback", addr: "::1", want: LocalDev},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.addr))
		})
	}

	assert.Equal(t, uint64(1), m.Get(metrics.GeoLookupsFailed))
}

func TestResolver_CachesSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := ipAPI(t, map[string]string{"198.51.100.2": "Chile"}, &hits)
	r := NewResolver(Options{Endpoint: srv.URL + "/json/", Logger: testLogger()})

	for range 3 {
		assert.Equal(t, "Chile", r.Resolve(context.Background(), "198.51.100.2"))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolver_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	r := NewResolver(Options{Endpoint: srv.URL + "/json/", Logger: testLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, Unknown, r.Resolve(ctx, "192.0.2.1"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		remote    string
		want      string
	}{
		{name: "first forwarded entry", forwarded: "203.0.113.9, 10.0.0.2", remote: "10.0.0.3:5555", want: "203.0.113.9"},
		{name: "single forwarded entry", forwarded: "198.51.100.1", remote: "10.0.0.3:5555", want: "198.51.100.1"},
		{name: "remote addr", remote: "192.0.2.44:40000", want: "192.0.2.44"},
		{name: "ipv6 remote addr", remote: "[::1]:40000", want: "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "192.0.2.1", "Peru", time.Minute))
	got, ok := c.Get(ctx, "192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, "Peru", got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "192.0.2.1")
	assert.False(t, ok)
}

func TestNewCache_FallsBackToMemory(t *testing.T) {
	t.Run("no address", func(t *testing.T) {
		c, closeFn := NewCache(context.Background(), "", testLogger())
		assert.IsType(t, &MemoryCache{}, c)
		assert.NoError(t, closeFn())
	})

	t.Run("unreachable redis", func(t *testing.T) {
		c, closeFn := NewCache(context.Background(), "127.0.0.1:1", testLogger())
		assert.IsType(t, &MemoryCache{}, c)
		assert.NoError(t, closeFn())
	})
}
