package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func TestRootEndpoint(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.HTTP.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "roomchat server is running!", string(body))
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestHealthEndpointCountsConnections(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)
	ts.Join(t, "alice", "General")
	ts.Join(t, "alice", "Work")
	ts.Join(t, "bob", "General")

	resp := testhelpers.MakeRequest(t, http.MethodGet, ts.HTTP.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status server.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 3, status.Connections)
	assert.Equal(t, 2, status.Users)
	assert.Contains(t, status.Rooms, chat.RoomInfo{Name: "General", Topic: "Welcome to the general discussion room", Members: 2})
	assert.Contains(t, status.Rooms, chat.RoomInfo{Name: "Work", Topic: "Work-related discussions", Members: 1})
}

func TestConfiguredRooms(t *testing.T) {
	ts := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.Rooms = []chat.RoomConfig{{Name: "Lobby", Topic: "Start here"}}
		cfg.DefaultRoom = "Lobby"
	})

	assert.Equal(t, []chat.RoomInfo{{Name: "Lobby", Topic: "Start here"}}, ts.Registry().Rooms())

	_, history := ts.Join(t, "alice", "")
	assert.Empty(t, history)
	room, ok := ts.Registry().Room("Lobby")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, room.Members())
}
