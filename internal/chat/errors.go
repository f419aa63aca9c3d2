package chat

import (
	"errors"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

var (
	// ErrDuplicateMember is returned when a username is already joined to the
	// target room.
	ErrDuplicateMember = errors.New("username already present in room")

	// ErrRoomJoinConflict is returned by Registry.Connect when the room
	// rejected the join. It always wraps ErrDuplicateMember.
	ErrRoomJoinConflict = errors.New("room join conflict")

	// ErrRoomMismatch is returned when a chat message names a room other than
	// the one its connection joined.
	ErrRoomMismatch = errors.New("message room does not match connection room")

	// ErrNotMember is returned when a payload arrives for a user that is not
	// joined to the room it claims to come from.
	ErrNotMember = errors.New("user is not a member of the room")

	// ErrUnknownRoom is returned when dispatching into a room that was never
	// created.
	ErrUnknownRoom = errors.New("unknown room")

	// ErrInvalidName is returned for empty usernames or room names.
	ErrInvalidName = errors.New("username and room name must not be empty")

	// ErrMalformedPayload aliases the codec error so callers of this package
	// need not import protocol to classify dispatch failures.
	ErrMalformedPayload = protocol.ErrMalformedPayload
)
