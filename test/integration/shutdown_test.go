package integration

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func TestGracefulShutdownClosesEveryConnection(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)

	names := []string{"alice", "bob", "carol", "dave", "erin"}
	conns := make([]*websocket.Conn, len(names))
	for i, name := range names {
		conns[i], _ = ts.Join(t, name, "General")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Shutdown(ctx))

	for i, conn := range conns {
		closeErr := testhelpers.ReadCloseError(t, conn)
		assert.Equal(t, websocket.CloseGoingAway, closeErr.Code, "client %s", names[i])
	}

	room, ok := ts.Registry().Room("General")
	require.True(t, ok)
	assert.Zero(t, room.Len())
	assert.Zero(t, ts.Hub().ClientCount())
	assert.Zero(t, ts.Registry().Presence().Len())
}

func TestConnectionsAfterShutdownAreTurnedAway(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Hub().Shutdown(ctx))

	conn := ts.Dial(t, "late", "General")
	closeErr := testhelpers.ReadCloseError(t, conn)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

	room, ok := ts.Registry().Room("General")
	require.True(t, ok)
	assert.Zero(t, room.Len())
}

func TestShutdownIsIdempotent(t *testing.T) {
	ts := testhelpers.StartServer(t, nil)
	ts.Join(t, "alice", "General")

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		assert.NoError(t, ts.Shutdown(ctx))
		cancel()
	}
}
