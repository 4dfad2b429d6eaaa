package peer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/dns"
	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
	"github.com/shobhitrajxyz/anonymate-app/internal/server"
	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

const waitTimeout = 2 * time.Second

func startBroker(t *testing.T) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New()
	hub := signaling.NewHub(signaling.Options{Logger: logger, Metrics: m})
	go hub.Run()
	t.Cleanup(hub.Stop)

	cfg := &config.ServerConfig{Port: config.DefaultPort, AllowedOrigins: []string{"*"}}
	ts := httptest.NewServer(server.New(cfg, hub, m, logger).Handler())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectPeer(t *testing.T, url string) (*Client, *Handler, string) {
	t.Helper()

	client := NewClient(url, dns.NewResolver())
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	handler := NewHandler(client)
	go handler.Start()

	select {
	case id := <-handler.Connected:
		return client, handler, id
	case <-time.After(waitTimeout):
		t.Fatal("no connected hello")
		return nil, nil, ""
	}
}

func awaitMatch(t *testing.T, h *Handler) *Match {
	t.Helper()

	select {
	case m := <-h.MatchFound:
		return m
	case <-time.After(waitTimeout):
		t.Fatal("no match")
		return nil
	}
}

func TestClient_MatchAndSignal(t *testing.T) {
	url := startBroker(t)

	alice, aliceH, aliceID := connectPeer(t, url)
	bob, bobH, bobID := connectPeer(t, url)

	require.NoError(t, alice.JoinQueue())
	require.NoError(t, bob.JoinQueue())

	aliceMatch := awaitMatch(t, aliceH)
	bobMatch := awaitMatch(t, bobH)

	// Whichever join reached the broker second initiates.
	assert.NotEqual(t, aliceMatch.Initiator, bobMatch.Initiator)
	assert.Equal(t, bobID, aliceMatch.PartnerID)
	assert.Equal(t, aliceID, bobMatch.PartnerID)
	assert.Equal(t, bobMatch.RoomID, aliceMatch.RoomID)

	raw, err := json.Marshal(SignalPayload{Type: SignalOffer, SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, bob.SendMessage(&signaling.Message{
		Type:    signaling.MessageTypeSignal,
		RoomID:  bobMatch.RoomID,
		Payload: raw,
	}))

	select {
	case sig := <-aliceH.Signal:
		assert.Equal(t, bobID, sig.From)
		assert.Equal(t, SignalOffer, sig.Payload.Type)
		assert.Equal(t, "v=0", sig.Payload.SDP)
	case <-time.After(waitTimeout):
		t.Fatal("no signal relayed")
	}

	bob.Close()
	select {
	case roomID := <-aliceH.PeerLeft:
		assert.Equal(t, aliceMatch.RoomID, roomID)
	case <-time.After(waitTimeout):
		t.Fatal("no peer_left")
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", nil)
	client.Close()
	client.Close()

	assert.ErrorIs(t, client.JoinQueue(), ErrServerClosed)
}

func TestClient_ConnectFailure(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", dns.NewResolver())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, client.Connect(ctx))
}

func TestHandler_DoneOnDisconnect(t *testing.T) {
	client := NewClient("", nil)
	handler := NewHandler(client)
	go handler.Start()

	client.incoming <- &signaling.Message{Type: signaling.MessageTypeUserCount, Payload: json.RawMessage(`{"count":3}`)}
	client.incoming <- &signaling.Message{Type: signaling.MessageTypeUserCount, Payload: json.RawMessage(`{"count":4}`)}
	close(client.incoming)

	select {
	case <-handler.Done():
	case <-time.After(waitTimeout):
		t.Fatal("handler did not finish")
	}
	assert.Equal(t, 4, <-handler.UserCount)
}
