// Package server defines connection lifecycle types and utility helpers that
// are reused across client and hub logic.
package server

import (
	"errors"
	"strings"
)

// ConnState is the lifecycle position of one chat connection.
type ConnState int32

const (
	// StateConnecting covers the upgrade until the room accepts the join.
	StateConnecting ConnState = iota
	// StateJoined means the join succeeded but nothing has been read yet.
	StateJoined
	// StateActive means at least one inbound frame has been processed.
	StateActive
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

var (
	// ErrHubClosed is returned when registering a client after shutdown began.
	ErrHubClosed = errors.New("server: hub closed")
	// ErrTransportClosed is returned when writing to a connection that is
	// already on its disconnect path.
	ErrTransportClosed = errors.New("server: transport closed")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
