// Package testhelpers provides common utilities and helper functions for
// testing the chat server end to end.
//
// It starts servers behind httptest, dials chat connections and reads
// envelopes with deadlines so integration tests stay short.
package testhelpers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/server"
)

// ReadTimeout bounds every read helper.
const ReadTimeout = 5 * time.Second

// TestServer is a running chat server plus its httptest front.
type TestServer struct {
	*server.Server
	HTTP *httptest.Server
}

// StartServer runs a chat server with DefaultConfig adjusted by mutate. It is
// shut down when the test ends.
func StartServer(t *testing.T, mutate func(*server.Config)) *TestServer {
	t.Helper()

	cfg := server.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg, nil)
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		ts.Close()
	})
	return &TestServer{Server: srv, HTTP: ts}
}

// WSURL returns the chat endpoint URL for username and room. An empty room
// is left out of the query.
func (s *TestServer) WSURL(username, room string) string {
	q := url.Values{}
	if username != "" {
		q.Set("username", username)
	}
	if room != "" {
		q.Set("room", room)
	}
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws?" + q.Encode()
}

// Dial opens a chat connection, failing the test on error. The connection is
// closed when the test ends.
func (s *TestServer) Dial(t *testing.T, username, room string) *websocket.Conn {
	t.Helper()

	conn, resp, err := s.DialWithHeader(username, room, nil)
	require.NoError(t, err, "dial %s@%s (status %d)", username, room, statusOf(resp))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWithHeader dials without failing the test so callers can inspect the
// handshake response.
func (s *TestServer) DialWithHeader(username, room string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(s.WSURL(username, room), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Join dials and consumes the connect sequence: replayed history, the user
// list and the join notice. It returns the replayed history.
func (s *TestServer) Join(t *testing.T, username, room string) (*websocket.Conn, []protocol.Envelope) {
	t.Helper()

	conn := s.Dial(t, username, room)
	var history []protocol.Envelope
	for {
		env := ReadEnvelope(t, conn)
		if env.Type == protocol.TypeUserList {
			break
		}
		history = append(history, env)
	}
	RequireNotice(t, ReadEnvelope(t, conn), username+" has joined the room")
	return conn, history
}

// ReadEnvelope reads one envelope, failing the test on timeout or error.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()

	env, err := TryReadEnvelope(conn, ReadTimeout)
	require.NoError(t, err)
	return env
}

// TryReadEnvelope reads one envelope within timeout.
func TryReadEnvelope(conn *websocket.Conn, timeout time.Duration) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return env, err
	}
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if messageType != websocket.TextMessage {
		return env, errors.New("unexpected non-text frame")
	}
	err = json.Unmarshal(data, &env)
	return env, err
}

// ReadUntil reads envelopes until match returns true and returns the
// matching one.
func ReadUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Envelope) bool) protocol.Envelope {
	t.Helper()

	deadline := time.Now().Add(ReadTimeout)
	for time.Now().Before(deadline) {
		env, err := TryReadEnvelope(conn, time.Until(deadline))
		require.NoError(t, err)
		if match(env) {
			return env
		}
	}
	require.FailNow(t, "no matching envelope before deadline")
	return protocol.Envelope{}
}

// ExpectNoEnvelope asserts that nothing arrives within wait.
func ExpectNoEnvelope(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	env, err := TryReadEnvelope(conn, wait)
	if err == nil {
		t.Fatalf("expected no envelope, got %+v", env)
	}
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

// ReadCloseError reads until the peer closes and returns the close error.
func ReadCloseError(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		return closeErr
	}
}

// SendChat sends a chat payload. An empty room is omitted from the payload.
func SendChat(conn *websocket.Conn, username, content, room string) error {
	payload := map[string]string{"type": "message", "username": username, "content": content}
	if room != "" {
		payload["room"] = room
	}
	return conn.WriteJSON(payload)
}

// SendStatus sends a status change.
func SendStatus(conn *websocket.Conn, username, status string) error {
	return conn.WriteJSON(map[string]string{"type": "status", "username": username, "status": status})
}

// RequireUserList asserts env is a user list with exactly users, in order.
func RequireUserList(t *testing.T, env protocol.Envelope, users ...string) {
	t.Helper()
	require.Equal(t, protocol.TypeUserList, env.Type, "envelope: %+v", env)
	require.Equal(t, users, env.Users)
}

// RequireNotice asserts env is a system notice with content.
func RequireNotice(t *testing.T, env protocol.Envelope, content string) {
	t.Helper()
	require.Equal(t, protocol.TypeMessage, env.Type, "envelope: %+v", env)
	require.Equal(t, protocol.SystemUsername, env.Username)
	require.Equal(t, content, env.Content)
}

// MakeRequest executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, target string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, target, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
