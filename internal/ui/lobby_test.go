package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
)

func TestLobbyModel_Update(t *testing.T) {
	m := newLobbyModel(peer.NewHandler(peer.NewClient("", nil)))

	next, _ := m.Update(userCountMsg(7))
	m = next.(lobbyModel)
	assert.Equal(t, 7, m.count)
	assert.Contains(t, m.View(), "online")

	match := &peer.Match{RoomID: "b#a", PartnerID: "a", PartnerCountry: "Norway"}
	next, cmd := m.Update(matchMsg{match: match})
	m = next.(lobbyModel)
	require.NotNil(t, cmd)
	assert.Same(t, match, m.match)
	assert.Empty(t, m.View())
}

func TestLobbyModel_Cancel(t *testing.T) {
	m := newLobbyModel(peer.NewHandler(peer.NewClient("", nil)))

	next, cmd := m.Update(cancelMsg{})
	require.NotNil(t, cmd)
	assert.ErrorIs(t, next.(lobbyModel).err, peer.ErrCancelled)
}

func TestLobbyModel_ServerClosed(t *testing.T) {
	m := newLobbyModel(peer.NewHandler(peer.NewClient("", nil)))

	next, _ := m.Update(serverClosedMsg{})
	assert.ErrorIs(t, next.(lobbyModel).err, peer.ErrServerClosed)
}

func TestMatchView(t *testing.T) {
	out := MatchView(&peer.Match{
		RoomID:         "b#a",
		Initiator:      true,
		PartnerID:      "0123456789abcdef",
		PartnerCountry: "Norway",
	})

	assert.Contains(t, out, "Norway")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "initiating")
}
