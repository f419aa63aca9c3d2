package server

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubShutdownWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.Zero(t, hub.ClientCount())
}

func TestHubRegisterAfterShutdown(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	client := newDetachedClient(t, DefaultConfig())
	assert.ErrorIs(t, hub.Register(client), ErrHubClosed)
}

func TestHubShutdownTimesOutWhenNotRunning(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Shutdown(ctx), context.DeadlineExceeded)
}

func TestHubUnregisterAfterStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))

	client := newDetachedClient(t, DefaultConfig())
	hub.mutex.Lock()
	hub.clients[client] = struct{}{}
	hub.mutex.Unlock()

	hub.unregisterClient(client)
	assert.Zero(t, hub.ClientCount())
}

func TestServerShutdownClosesConnections(t *testing.T) {
	srv, ts := startTestServer(t)
	conn := dialChat(t, ts, "username=alice")
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Hub().Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	room, ok := srv.Registry().Room("General")
	require.True(t, ok)
	assert.Zero(t, room.Len())
	assert.Zero(t, srv.Registry().Presence().Len())
}
