package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"users":5,"queued":1,"rooms":2}`))
	}))
	defer srv.Close()

	stats, err := fetchStats(context.Background(), srv.URL+"/stats")
	require.NoError(t, err)
	assert.Equal(t, &signaling.Stats{Users: 5, Queued: 1, Rooms: 2}, stats)
}

func TestFetchStats_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchStats(context.Background(), srv.URL+"/stats")
	assert.ErrorIs(t, err, peer.ErrConnectionFailed)
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	renderStats(&buf, "http://localhost:3001/stats", &signaling.Stats{Users: 12, Queued: 3, Rooms: 4})

	out := buf.String()
	assert.Contains(t, out, "Users online")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "Open rooms")
}
