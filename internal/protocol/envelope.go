// Package protocol defines the JSON envelope exchanged with chat clients and
// the closed set of inbound and outbound message variants carried by it.
package protocol

import "time"

// Type is the envelope discriminator.
type Type string

// Envelope types understood by the server and its clients.
const (
	TypeMessage    Type = "message"
	TypeStatus     Type = "status"
	TypeUserList   Type = "user_list"
	TypeUserJoined Type = "user_joined"
	TypeUserLeft   Type = "user_left"
)

// SystemUsername is the author name stamped on server generated notices.
const SystemUsername = "System"

// TimestampLayout renders server timestamps at minute resolution.
const TimestampLayout = "15:04"

// Stamp formats t the way every broadcast timestamp is rendered.
func Stamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Envelope is the client-side decoding view of every outbound message. The
// server encodes the typed variants below; a client that does not know the
// type in advance decodes into Envelope and reads the fields its Type uses.
type Envelope struct {
	Type      Type              `json:"type"`
	Username  string            `json:"username,omitempty"`
	Content   string            `json:"content,omitempty"`
	Room      string            `json:"room,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Status    string            `json:"status,omitempty"`
	Users     []string          `json:"users,omitempty"`
	Statuses  map[string]string `json:"statuses,omitempty"`
}

// Message is a room history entry: either a Chat or a SystemNotice.
type Message interface {
	Outbound
	message()
}

// Outbound is anything the server encodes and sends to a client.
type Outbound interface {
	envelope() any
}

// Chat is a user authored message.
type Chat struct {
	Username  string
	Content   string
	Room      string
	Timestamp string
}

func (Chat) message() {}

func (c Chat) envelope() any {
	return chatWire{
		Type:      TypeMessage,
		Username:  c.Username,
		Content:   c.Content,
		Room:      c.Room,
		Timestamp: c.Timestamp,
	}
}

// SystemNotice is a server generated message such as a join or leave notice.
// On the wire it is a "message" envelope authored by SystemUsername.
type SystemNotice struct {
	Content   string
	Room      string
	Timestamp string
}

func (SystemNotice) message() {}

func (n SystemNotice) envelope() any {
	return chatWire{
		Type:      TypeMessage,
		Username:  SystemUsername,
		Content:   n.Content,
		Room:      n.Room,
		Timestamp: n.Timestamp,
	}
}

// UserList is the member snapshot of a room together with each member's
// presence status.
type UserList struct {
	Users    []string
	Statuses map[string]string
}

func (u UserList) envelope() any {
	users := u.Users
	if users == nil {
		users = []string{}
	}
	statuses := u.Statuses
	if statuses == nil {
		statuses = map[string]string{}
	}
	return userListWire{Type: TypeUserList, Users: users, Statuses: statuses}
}

type chatWire struct {
	Type      Type   `json:"type"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

type userListWire struct {
	Type     Type              `json:"type"`
	Users    []string          `json:"users"`
	Statuses map[string]string `json:"statuses"`
}
